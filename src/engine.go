package storyweaver

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State names the engine's position in the chapter generation cycle.
type State string

const (
	StateIdle            State = "idle"
	StateAwaitingChapter State = "awaiting_chapter"
	StateRendering       State = "rendering"
	StateAwaitingChoice  State = "awaiting_choice"
	StateTerminal        State = "terminal"
)

var (
	// ErrWrongState is returned when an operation is attempted outside the
	// state it belongs to, including a second request while one is pending.
	ErrWrongState = errors.New("operation not valid in current story state")
)

// TextGenerator produces the next chapter from the full conversation
// history. The history is sent in order as the entire context window.
type TextGenerator interface {
	GenerateStory(ctx context.Context, history []Message) (string, error)
}

// EventType tags engine events streamed to the UI layer.
type EventType string

const (
	EventChapter  EventType = "chapter"
	EventImage    EventType = "image"
	EventError    EventType = "error"
	EventTimer    EventType = "timer"
	EventFinished EventType = "finished"
)

// Event is one UI-visible occurrence in the story's progression.
type Event struct {
	Type     EventType `json:"type"`
	Chapter  int       `json:"chapter,omitempty"`
	Text     string    `json:"text,omitempty"`
	Choices  []string  `json:"choices,omitempty"`
	Image    string    `json:"image,omitempty"`
	Message  string    `json:"message,omitempty"`
	Terminal bool      `json:"terminal,omitempty"`

	// Remaining carries the countdown seconds on timer events.
	Remaining int `json:"remaining,omitempty"`
}

// Snapshot is the engine's current public state, used by polling clients
// and tests.
type Snapshot struct {
	State    State    `json:"state"`
	Chapter  int      `json:"chapter"`
	Chapters []string `json:"chapters"`
	Choices  []string `json:"choices"`
	Image    string   `json:"image"`
	Rated    bool     `json:"rated"`
}

const illustrationTimeout = 2 * time.Minute

// Engine drives one story: it owns the history, the chapter counter and
// the story artifact, and serializes every mutation behind its mutex. At
// most one text-generation request is outstanding at a time; that is
// enforced by the state machine, not by holding the lock across the call.
type Engine struct {
	mu       sync.Mutex
	state    State
	epoch    uint64
	history  History
	chapter  int
	chapters []string
	choices  []string
	image    string
	artifact *StoryArtifact
	saved    bool

	gen   TextGenerator
	illus Illustrator
	store StoryStore
	emit  func(Event)
	rng   *rand.Rand
	log   zerolog.Logger
}

// EngineOption configures optional collaborators.
type EngineOption func(*Engine)

// WithIllustrator attaches a best-effort illustration backend.
func WithIllustrator(il Illustrator) EngineOption {
	return func(e *Engine) { e.illus = il }
}

// WithStore attaches the rated-story persistence collaborator.
func WithStore(st StoryStore) EngineOption {
	return func(e *Engine) { e.store = st }
}

// WithEmitter registers the event callback. It is invoked on the engine's
// own transitions (and from the detached illustration task) and must not
// call back into the engine.
func WithEmitter(fn func(Event)) EngineOption {
	return func(e *Engine) { e.emit = fn }
}

// WithRand pins the rng used for the random prompt inserts.
func WithRand(rng *rand.Rand) EngineOption {
	return func(e *Engine) { e.rng = rng }
}

// WithLogger sets the engine logger.
func WithLogger(log zerolog.Logger) EngineOption {
	return func(e *Engine) { e.log = log }
}

// NewEngine creates an idle engine around a text-generation backend.
func NewEngine(gen TextGenerator, opts ...EngineOption) *Engine {
	e := &Engine{
		state: StateIdle,
		gen:   gen,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start validates the setup, seeds the history with the persona message and
// the master prompt, and requests chapter one. Validation failures abort
// before any network call.
func (e *Engine) Start(ctx context.Context, settings StorySettings) error {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return fmt.Errorf("start: %w", ErrWrongState)
	}
	if err := settings.Validate(); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("invalid setup: %w", err)
	}

	inserts := NewRandomInserts(settings.Duration, settings.Age, e.rng)
	e.epoch++
	e.history.Seed(PersonaPrompt, BuildMasterPrompt(settings, inserts))
	e.chapter = 1
	e.chapters = nil
	e.choices = nil
	e.artifact = nil
	e.saved = false
	e.state = StateAwaitingChapter
	e.mu.Unlock()

	return e.generate(ctx)
}

// Advance commits the reader's choice (empty means the generic continue
// action), increments the chapter counter, injects the per-turn directive
// and requests the next chapter.
func (e *Engine) Advance(ctx context.Context, choice string) error {
	e.mu.Lock()
	if e.state != StateAwaitingChoice {
		e.mu.Unlock()
		return fmt.Errorf("advance: %w", ErrWrongState)
	}
	e.history.Append(RoleUser, ChoiceMessage(choice))
	e.chapter++
	e.history.Append(RoleSystem, NextChapterDirective(e.chapter))
	e.state = StateAwaitingChapter
	e.mu.Unlock()

	return e.generate(ctx)
}

// Retry re-issues the pending chapter request after a failed generation.
// The history was not rolled back, so the same context is resent.
func (e *Engine) Retry(ctx context.Context) error {
	return e.generate(ctx)
}

// generate performs one request/parse/render round. The mutex is released
// for the duration of the upstream call; StateRendering keeps a second
// request from being issued meanwhile.
func (e *Engine) generate(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateAwaitingChapter {
		e.mu.Unlock()
		return fmt.Errorf("generate: %w", ErrWrongState)
	}
	e.state = StateRendering
	msgs := e.history.Messages()
	num := e.chapter
	epoch := e.epoch
	e.mu.Unlock()

	raw, err := e.gen.GenerateStory(ctx, msgs)
	if err == nil && strings.TrimSpace(raw) == "" {
		err = errors.New("empty story response")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.epoch != epoch {
		// The session was reset while the request was in flight. The result
		// belongs to a story that no longer exists, so it is not consumed.
		e.log.Debug().Int("chapter", num).Msg("discarding stale chapter result")
		return nil
	}

	if err != nil {
		// Recoverable: surface a visible error and stay ready for a retry.
		e.state = StateAwaitingChapter
		e.log.Error().Err(err).Int("chapter", num).Msg("chapter generation failed")
		e.send(Event{Type: EventError, Chapter: num, Message: "Error loading story. Please try again."})
		return fmt.Errorf("generating chapter %d: %w", num, err)
	}

	if IsFinalChapter(raw) {
		text := strings.TrimSpace(raw)
		e.chapters = append(e.chapters, text)
		e.choices = nil
		e.state = StateTerminal
		e.artifact = &StoryArtifact{
			Text:  strings.Join(e.chapters, "\n\n"),
			Image: e.image,
			Date:  time.Now(),
		}
		e.log.Info().Int("chapter", num).Msg("terminal chapter detected")
		e.send(Event{Type: EventChapter, Chapter: num, Text: text, Terminal: true})
		e.send(Event{Type: EventFinished})
		return nil
	}

	e.history.Append(RoleAssistant, raw)
	parsed := ParseChapterAndChoices(raw)
	text := parsed.ChapterText
	if text == "" {
		// Bullets-only response: show the raw text rather than nothing.
		text = strings.TrimSpace(raw)
	}
	e.chapters = append(e.chapters, text)
	e.choices = parsed.Choices
	if len(e.choices) < 2 {
		// Fewer than two usable choices: the UI offers a single generic
		// "Continue" action instead.
		e.choices = nil
	}
	e.state = StateAwaitingChoice
	e.send(Event{Type: EventChapter, Chapter: num, Text: text, Choices: e.choices})
	e.requestIllustration(text)
	return nil
}

// requestIllustration fires a detached best-effort image request. It has no
// cancellation and no ordering guarantee relative to the cycle: a late
// result for an earlier chapter may overwrite a newer image, which is an
// accepted cosmetic race since only one image is displayed at a time.
func (e *Engine) requestIllustration(chapterText string) {
	if e.illus == nil {
		return
	}
	prompt := SanitizeImagePrompt(chapterText)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), illustrationTimeout)
		defer cancel()

		ref, err := e.illus.GenerateImage(ctx, prompt)
		if err != nil {
			// Previous illustration stays in place.
			e.log.Warn().Err(err).Msg("illustration request failed")
			return
		}
		if ref == "" {
			ref = PlaceholderImage("Image not available")
		}

		e.mu.Lock()
		e.image = ref
		e.send(Event{Type: EventImage, Image: ref})
		e.mu.Unlock()
	}()
}

// Rate accepts the one rating action allowed per story and hands the
// artifact to the store. Later attempts are no-ops.
func (e *Engine) Rate(rating int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateTerminal || e.artifact == nil {
		return fmt.Errorf("rate: %w", ErrWrongState)
	}
	if e.saved {
		return nil
	}
	if rating < 1 || rating > 5 {
		return fmt.Errorf("rating %d out of range 1-5", rating)
	}

	e.artifact.Rating = rating
	e.saved = true
	if e.store != nil {
		if err := e.store.Append(*e.artifact); err != nil {
			e.log.Error().Err(err).Msg("failed to persist story")
		}
	}
	return nil
}

// StoryText returns the finished story text. Available any time after the
// terminal chapter, independent of rating.
func (e *Engine) StoryText() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.artifact == nil {
		return "", false
	}
	return e.artifact.Text, true
}

// Artifact returns a copy of the finished story artifact.
func (e *Engine) Artifact() (StoryArtifact, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.artifact == nil {
		return StoryArtifact{}, false
	}
	return *e.artifact, true
}

// Reset clears the session back to Idle. Persisted stories are untouched.
// Bumping the epoch makes any in-flight generation result stale, so a late
// reply cannot mutate the cleared engine.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.epoch++
	e.history.Clear()
	e.chapter = 0
	e.chapters = nil
	e.choices = nil
	e.image = ""
	e.artifact = nil
	e.saved = false
	e.state = StateIdle
}

// Snapshot returns the current public state for polling clients.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	chapters := make([]string, len(e.chapters))
	copy(chapters, e.chapters)
	choices := make([]string, len(e.choices))
	copy(choices, e.choices)
	return Snapshot{
		State:    e.state,
		Chapter:  e.chapter,
		Chapters: chapters,
		Choices:  choices,
		Image:    e.image,
		Rated:    e.saved,
	}
}

// State returns the engine's current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// HistoryLen reports the current history length.
func (e *Engine) HistoryLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Len()
}

// HistoryMessages returns a copy of the conversation log.
func (e *Engine) HistoryMessages() []Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Messages()
}

func (e *Engine) send(ev Event) {
	if e.emit != nil {
		e.emit(ev)
	}
}
