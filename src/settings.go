package storyweaver

import (
	"errors"
	"fmt"
	"math/rand"
)

// StorySettings carries the setup form: theme, tone sliders (0-10), reader
// age and target duration in minutes.
type StorySettings struct {
	Theme    string `json:"theme"`
	Age      int    `json:"age"`
	Duration int    `json:"duration"`
	Violence int    `json:"violence"`
	Humor    int    `json:"humor"`
	Romance  int    `json:"romance"`
	Fantasy  int    `json:"fantasy"`
	Darkness int    `json:"darkness"`
	Emotion  int    `json:"emotion"`
}

// Validate rejects malformed setup before any network call is made.
func (s StorySettings) Validate() error {
	if s.Theme == "" {
		return errors.New("theme is required")
	}
	if s.Age < 1 || s.Age > 120 {
		return fmt.Errorf("age %d out of range", s.Age)
	}
	if s.Duration < 1 {
		return fmt.Errorf("duration %d must be at least one minute", s.Duration)
	}
	for _, v := range []int{s.Violence, s.Humor, s.Romance, s.Fantasy, s.Darkness, s.Emotion} {
		if v < 0 || v > 10 {
			return fmt.Errorf("tone slider value %d out of range 0-10", v)
		}
	}
	return nil
}

// RandomInserts are optional directives mixed into the master prompt to
// vary the story: puzzles, item choices and a rare hidden bad ending.
type RandomInserts struct {
	PuzzleInserts     []string
	ItemChoiceInserts []string
	RareBadEnding     string
}

// puzzleDifficulty scales riddle difficulty with reader age. Readers over
// forty get "any difficulty", leaving the model free rein.
func puzzleDifficulty(age int) string {
	switch {
	case age < 8:
		return "very easy"
	case age < 13:
		return "easy"
	case age < 17:
		return "medium"
	case age < 40:
		return "challenging"
	default:
		return "any difficulty"
	}
}

// maxPuzzlesFor scales the puzzle budget with total story duration.
func maxPuzzlesFor(duration int) int {
	switch {
	case duration >= 61:
		return 4
	case duration >= 46:
		return 3
	case duration >= 31:
		return 2
	case duration >= 15:
		return 1
	default:
		return 0
	}
}

// NewRandomInserts rolls the optional prompt inserts for one story. The rng
// is injected so callers can pin the rolls in tests.
func NewRandomInserts(duration, age int, rng *rand.Rand) RandomInserts {
	var ins RandomInserts

	difficulty := puzzleDifficulty(age)
	numPuzzles := rng.Intn(maxPuzzlesFor(duration) + 1)
	for i := 0; i < numPuzzles; i++ {
		ins.PuzzleInserts = append(ins.PuzzleInserts, fmt.Sprintf(
			"At the end of a random chapter, instead of choices, present a logic or word puzzle or riddle for the user to solve. The difficulty of the puzzle should be %s for a person who is %d years old. Wait for the user to solve it before continuing the story.",
			difficulty, age))
	}

	maxItemChoices := 0
	if duration >= 45 {
		maxItemChoices = 2
	}
	numItemChoices := rng.Intn(maxItemChoices + 1)
	for i := 0; i < numItemChoices; i++ {
		ins.ItemChoiceInserts = append(ins.ItemChoiceInserts,
			"At a random chapter, instead of a normal decision or puzzle, let the user choose one item from 3 to 5 possible items. Only describe the items and do NOT say which one is important or useless. Later in the story, make sure that the chosen item either turns out to be very useful, or turns out to be unnecessary or disappointing, depending on the story direction and user choices. Sometimes the chosen item should have no benefit at all, while another unchosen item would have helped greatly. Be creative and vary which items are actually useful or not in each story.")
	}

	// Rare roll: young readers occasionally get a story that cannot be saved.
	if age < 17 && rng.Intn(25) == 0 {
		ins.RareBadEnding = "Important: No matter what choices the user makes, this story must end in a sad, devastating way. All choices should ultimately lead to an unhappy or tragic ending, even if the user tries to do everything right. Do not give any hints that this will happen. This should happen only very rarely, randomly for young users."
	}

	return ins
}
