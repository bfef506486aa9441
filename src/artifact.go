package storyweaver

import "time"

// StoryArtifact is the finished story handed to storage. Created once at
// terminal detection, mutated once more when the user rates it, then never
// touched again by the engine.
type StoryArtifact struct {
	Text   string    `json:"text"`
	Image  string    `json:"image"`
	Rating int       `json:"rating,omitempty"`
	Date   time.Time `json:"date"`
}

// StoryStore persists rated stories. Implementations must be fail-soft:
// malformed stored data yields an empty list, never an error that crashes
// rendering.
type StoryStore interface {
	Append(art StoryArtifact) error
	ListAll() []StoryArtifact
}
