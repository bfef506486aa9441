package storyweaver

import (
	"regexp"
	"strings"
)

// finalChapterRe matches a standalone closing line. No multiline flag: the
// marker must be the last line of the response.
var finalChapterRe = regexp.MustCompile(`(?i)(?:^|\n)\s*(?:the\s+end|final\s+chapter|epilogue)\s*$`)

// IsFinalChapter reports whether a raw model response concludes the story.
// It runs on the raw text before parsing because the terminal marker may sit
// outside any bullet or heading structure the parser recognizes.
func IsFinalChapter(raw string) bool {
	return finalChapterRe.MatchString(strings.TrimSpace(raw))
}
