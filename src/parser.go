package storyweaver

import (
	"regexp"
	"strings"
)

// ParsedResponse is the result of splitting a raw model response into
// narrative text and branching choices. It is derived per response and
// never stored.
type ParsedResponse struct {
	ChapterText string
	Choices     []string
}

// Line classifiers, evaluated in priority order. The model output has no
// fixed schema, so these are heuristics over individual lines.
var (
	choicesHeaderRe  = regexp.MustCompile(`(?i)^#{2,3}\s*(?:choices\b|what\s+will\s+you\s+do\??)`)
	chapterHeadingRe = regexp.MustCompile(`(?i)^#{2,3}\s*chapter\s+\d+`)
	bulletRe         = regexp.MustCompile(`^\s*(?:[-*•]|\(?\d+\)?[.)]?|\[\d+\][.)]?)\s+(.*)$`)
)

type lineKind int

const (
	linePlain lineKind = iota
	lineChoicesHeader
	lineChapterHeading
	lineBullet
)

// classifyLine tags a single right-trimmed line. The bullet remainder is
// returned for lineBullet, empty otherwise.
func classifyLine(line string) (lineKind, string) {
	if chapterHeadingRe.MatchString(line) {
		return lineChapterHeading, ""
	}
	if choicesHeaderRe.MatchString(line) {
		return lineChoicesHeader, ""
	}
	if m := bulletRe.FindStringSubmatch(line); m != nil {
		return lineBullet, m[1]
	}
	return linePlain, ""
}

// ParseChapterAndChoices splits a raw model response into the chapter body
// and an ordered list of choice labels.
//
// The walk keeps an "in choices region" flag. A choices-section heading or
// the first bullet flips it on; once on, narrative lines are no longer
// accumulated. A "## Chapter N" heading inside the choices region means the
// model started the next chapter inline without waiting for the user, so
// parsing stops there and the remainder is discarded.
func ParseChapterAndChoices(raw string) ParsedResponse {
	var chapter []string
	var choices []string

	inChoices := false
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			continue
		}

		kind, rest := classifyLine(line)

		if inChoices && kind == lineChapterHeading {
			break
		}

		switch kind {
		case lineChoicesHeader:
			// Discarded either way; outside the region it opens it.
			inChoices = true
			continue
		case lineBullet:
			inChoices = true
			if cleaned := StripMarkdown(rest); cleaned != "" {
				choices = append(choices, cleaned)
			}
			continue
		}

		// Plain narrative, including the chapter's own title heading.
		if !inChoices {
			chapter = append(chapter, line)
		}
	}

	return ParsedResponse{
		ChapterText: strings.TrimSpace(strings.Join(chapter, "\n")),
		Choices:     choices,
	}
}
