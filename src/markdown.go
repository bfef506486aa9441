package storyweaver

import (
	"regexp"
	"strings"
)

var (
	boldRe   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicRe = regexp.MustCompile(`\*(.*?)\*`)
	codeRe   = regexp.MustCompile("`([^`]+)`")
	headerRe = regexp.MustCompile(`^#{1,6}\s+`)
	linkRe   = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
)

// StripMarkdown removes lightweight markup from model output so choice
// labels and image prompts read as plain text. Links are replaced by
// their visible label. Safe on empty input and idempotent.
func StripMarkdown(s string) string {
	if s == "" {
		return ""
	}
	s = boldRe.ReplaceAllString(s, "$1")
	s = italicRe.ReplaceAllString(s, "$1")
	s = codeRe.ReplaceAllString(s, "$1")
	s = headerRe.ReplaceAllString(s, "")
	s = linkRe.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}
