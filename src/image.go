package storyweaver

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Illustrator generates a displayable illustration reference (an https URL
// or an inline data URL) for a chapter. Callers treat it as best-effort:
// a failure never blocks story progression.
type Illustrator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

const maxImagePromptLen = 300

var whitespaceRe = regexp.MustCompile(`\s+`)

// SanitizeImagePrompt collapses whitespace, caps the length and appends a
// safety style tail so chapter text can be fed to an image model directly.
func SanitizeImagePrompt(raw string) string {
	txt := strings.TrimSpace(whitespaceRe.ReplaceAllString(raw, " "))
	if len(txt) > maxImagePromptLen {
		cut := maxImagePromptLen
		// Back up to a rune boundary so the cap never splits a character.
		for cut > 0 && !utf8.RuneStart(txt[cut]) {
			cut--
		}
		txt = txt[:cut]
	}
	if txt == "" {
		txt = "calm scenic illustration"
	}
	return txt + ". friendly, non-violent, no text, soft light"
}

// PlaceholderImage returns an inline SVG data URL carrying a human-readable
// reason. Used whenever no real illustration is available so the UI always
// has something to show.
func PlaceholderImage(reason string) string {
	if reason == "" {
		reason = "Image not available"
	}
	svg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="400" height="225">
  <rect width="100%%" height="100%%" fill="#ececec"/>
  <text x="50%%" y="50%%" dominant-baseline="middle" text-anchor="middle" font-family="sans-serif" font-size="16" fill="#999">%s</text>
</svg>`, htmlEscape(reason))
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}
