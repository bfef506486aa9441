package storyweaver

import (
	"fmt"
	"strings"
)

// PersonaPrompt establishes the narrative-engine persona. It is always the
// first message of a story's history and is never removed or reordered.
const PersonaPrompt = "You are an interactive story engine."

// RelayPersonaPrompt frames prompt-only requests arriving through the
// generate-story relay endpoint.
const RelayPersonaPrompt = "You are a creative storytelling engine."

// genericContinue is the user message recorded when no concrete choice was
// offered and the reader just advances the story.
const genericContinue = "Continue the story with the next chapter."

// BuildMasterPrompt encodes the setup form into the single large user
// message sent once at story start.
func BuildMasterPrompt(s StorySettings, ins RandomInserts) string {
	var extra strings.Builder
	for i, p := range ins.PuzzleInserts {
		fmt.Fprintf(&extra, "\nPUZZLE #%d: %s", i+1, p)
	}
	for i, p := range ins.ItemChoiceInserts {
		fmt.Fprintf(&extra, "\nITEM CHOICE #%d: %s", i+1, p)
	}
	if ins.RareBadEnding != "" {
		extra.WriteString("\n" + ins.RareBadEnding)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write an interactive, deep and meaningful story for a person who is %d years old.\n", s.Age)
	b.WriteString("The story should be engaging, with strong characters, consistent themes, and natural character development.\n\n")
	fmt.Fprintf(&b, "Theme: %q.\n", s.Theme)
	b.WriteString("Story characteristics (on a scale from 0 to 10):\n")
	fmt.Fprintf(&b, "- Violence: %d/10\n", s.Violence)
	fmt.Fprintf(&b, "- Humor: %d/10\n", s.Humor)
	fmt.Fprintf(&b, "- Romance: %d/10\n", s.Romance)
	fmt.Fprintf(&b, "- Fantasy: %d/10\n", s.Fantasy)
	fmt.Fprintf(&b, "- Darkness: %d/10\n", s.Darkness)
	fmt.Fprintf(&b, "- Emotion: %d/10\n\n", s.Emotion)
	b.WriteString("At the end of every chapter, stop and present the user with a meaningful choice that will influence the story's direction.\n")
	b.WriteString("Divide the story into chapters, each with a random length between 3 and 7 minutes of reading time. At the end of every chapter, pause and present the user with a random set of 3 to 5 distinct, meaningful choices for how the story should continue. The choices should be clearly different from each other and relevant to the current situation in the story. Wait for the user to select one before proceeding to the next chapter.\n")
	fmt.Fprintf(&b, "The total number of chapters and their lengths should add up to approximately %d minutes, as specified by the user.\n\n", s.Duration)
	b.WriteString("When you reach the final chapter, review the whole story and all user choices to deliver a satisfying and thoughtful ending that ties together all important threads and themes. Do not reveal planned endings before the last chapter.\n")
	if extra.Len() > 0 {
		b.WriteString("\n\n---\n" + extra.String() + "\n")
	}
	b.WriteString("\nBegin with the first chapter now.")
	return b.String()
}

// NextChapterDirective is the per-turn system message injected before each
// continuation request. The chapter number is advisory text for the model,
// not a structural guarantee.
func NextChapterDirective(chapter int) string {
	return fmt.Sprintf(`Continue the existing story in exactly one new chapter titled "Chapter %d: <Your Title>".
After the chapter, output the line "Choices:" and then 3-5 bullet choices (e.g., "- Do X").
Do not restart at Chapter 1. Do not summarize previous chapters.`, chapter)
}

// ChoiceMessage records the reader's pick as a user-role message.
func ChoiceMessage(choice string) string {
	if choice == "" {
		return genericContinue
	}
	return "The user chose: " + choice
}
