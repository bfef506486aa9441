package storyweaver

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chapterWithChoices = `## Chapter 1: The Gate

A tall gate blocked the road north.

## Choices
- Knock loudly
- Climb over
- Walk around`

// scriptedGenerator replays canned replies and records every request.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   [][]Message
}

func (g *scriptedGenerator) GenerateStory(_ context.Context, history []Message) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := len(g.calls)
	g.calls = append(g.calls, history)
	var err error
	if i < len(g.errs) {
		err = g.errs[i]
	}
	var out string
	if i < len(g.replies) {
		out = g.replies[i]
	}
	return out, err
}

func (g *scriptedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *scriptedGenerator) call(i int) []Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[i]
}

type stubIllustrator struct {
	ref string
	err error
}

func (s *stubIllustrator) GenerateImage(context.Context, string) (string, error) {
	return s.ref, s.err
}

type memStore struct {
	mu   sync.Mutex
	arts []StoryArtifact
}

func (m *memStore) Append(art StoryArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.arts = append(m.arts, art)
	return nil
}

func (m *memStore) ListAll() []StoryArtifact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StoryArtifact(nil), m.arts...)
}

func testSettings() StorySettings {
	return StorySettings{Theme: "pirates", Age: 30, Duration: 10}
}

func newTestEngine(gen TextGenerator, opts ...EngineOption) *Engine {
	opts = append(opts, WithRand(rand.New(rand.NewSource(1))))
	return NewEngine(gen, opts...)
}

func TestEngineStartHappyPath(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{chapterWithChoices}}
	e := newTestEngine(gen)

	require.NoError(t, e.Start(context.Background(), testSettings()))

	snap := e.Snapshot()
	assert.Equal(t, StateAwaitingChoice, snap.State)
	assert.Equal(t, 1, snap.Chapter)
	require.Len(t, snap.Chapters, 1)
	assert.Contains(t, snap.Chapters[0], "A tall gate blocked the road north.")
	assert.Equal(t, []string{"Knock loudly", "Climb over", "Walk around"}, snap.Choices)

	// Seed only: persona plus master prompt.
	require.Equal(t, 1, gen.callCount())
	sent := gen.call(0)
	require.Len(t, sent, 2)
	assert.Equal(t, RoleSystem, sent[0].Role)
	assert.Equal(t, PersonaPrompt, sent[0].Content)
	assert.Equal(t, RoleUser, sent[1].Role)

	// Reply recorded afterwards.
	assert.Equal(t, 3, e.HistoryLen())
}

func TestEngineStartValidation(t *testing.T) {
	gen := &scriptedGenerator{}
	e := newTestEngine(gen)

	err := e.Start(context.Background(), StorySettings{Theme: "", Age: 30, Duration: 10})
	require.Error(t, err)
	assert.Equal(t, StateIdle, e.State())
	assert.Zero(t, gen.callCount())
}

func TestEngineAdvanceHistoryShape(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{chapterWithChoices, chapterWithChoices}}
	e := newTestEngine(gen)

	require.NoError(t, e.Start(context.Background(), testSettings()))
	require.NoError(t, e.Advance(context.Background(), "Climb over"))

	// Second request carries seed + first reply + choice + directive.
	sent := gen.call(1)
	require.Len(t, sent, 5)
	assert.Equal(t, RoleAssistant, sent[2].Role)
	assert.Equal(t, RoleUser, sent[3].Role)
	assert.Equal(t, "The user chose: Climb over", sent[3].Content)
	assert.Equal(t, RoleSystem, sent[4].Role)
	assert.Contains(t, sent[4].Content, "Chapter 2")

	assert.Equal(t, 2, e.Snapshot().Chapter)
	assert.Equal(t, 6, e.HistoryLen())
}

func TestEngineTerminal(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{
		chapterWithChoices,
		"The gate swung open at last.\n\nThe End",
	}}
	store := &memStore{}
	e := newTestEngine(gen, WithStore(store))

	var events []Event
	var evMu sync.Mutex
	e.emit = func(ev Event) {
		evMu.Lock()
		events = append(events, ev)
		evMu.Unlock()
	}

	require.NoError(t, e.Start(context.Background(), testSettings()))
	lenBefore := e.HistoryLen()
	require.NoError(t, e.Advance(context.Background(), ""))

	assert.Equal(t, StateTerminal, e.State())
	// Terminal responses are rendered but never appended to the history.
	assert.Equal(t, lenBefore+2, e.HistoryLen())

	art, ok := e.Artifact()
	require.True(t, ok)
	assert.Contains(t, art.Text, "A tall gate blocked the road north.")
	assert.Contains(t, art.Text, "The gate swung open at last.")
	assert.False(t, art.Date.IsZero())

	evMu.Lock()
	last := events[len(events)-1]
	evMu.Unlock()
	assert.Equal(t, EventFinished, last.Type)

	// One rating is accepted, repeats are no-ops.
	require.NoError(t, e.Rate(4))
	require.NoError(t, e.Rate(5))
	saved := store.ListAll()
	require.Len(t, saved, 1)
	assert.Equal(t, 4, saved[0].Rating)
}

func TestEngineRateWrongState(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{chapterWithChoices}}
	e := newTestEngine(gen)
	require.NoError(t, e.Start(context.Background(), testSettings()))

	err := e.Rate(5)
	assert.ErrorIs(t, err, ErrWrongState)
}

func TestEngineGenerateFailureKeepsHistory(t *testing.T) {
	gen := &scriptedGenerator{
		replies: []string{"", chapterWithChoices},
		errs:    []error{errors.New("upstream down")},
	}
	e := newTestEngine(gen)

	err := e.Start(context.Background(), testSettings())
	require.Error(t, err)
	assert.Equal(t, StateAwaitingChapter, e.State())
	assert.Equal(t, 2, e.HistoryLen())

	// Retry resends the identical context.
	require.NoError(t, e.Retry(context.Background()))
	assert.Equal(t, gen.call(0), gen.call(1))
	assert.Equal(t, StateAwaitingChoice, e.State())
}

func TestEngineEmptyResponseIsFailure(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"   \n  "}}
	e := newTestEngine(gen)

	err := e.Start(context.Background(), testSettings())
	require.Error(t, err)
	assert.Equal(t, StateAwaitingChapter, e.State())
}

func TestEngineContinueFallback(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{
		"A quiet chapter.\n\n## Choices\n- Only option",
		chapterWithChoices,
	}}
	e := newTestEngine(gen)

	require.NoError(t, e.Start(context.Background(), testSettings()))
	// A single choice is not a real branch; the UI falls back to Continue.
	assert.Empty(t, e.Snapshot().Choices)

	require.NoError(t, e.Advance(context.Background(), ""))
	sent := gen.call(1)
	assert.Equal(t, "Continue the story with the next chapter.", sent[3].Content)
}

type blockingGenerator struct {
	started chan struct{}
	release chan struct{}
}

func (g *blockingGenerator) GenerateStory(context.Context, []Message) (string, error) {
	close(g.started)
	<-g.release
	return chapterWithChoices, nil
}

func TestEngineSingleOutstandingRequest(t *testing.T) {
	gen := &blockingGenerator{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	e := NewEngine(gen)

	done := make(chan error, 1)
	go func() { done <- e.Start(context.Background(), testSettings()) }()

	<-gen.started
	assert.Equal(t, StateRendering, e.State())
	assert.ErrorIs(t, e.Advance(context.Background(), "x"), ErrWrongState)
	assert.ErrorIs(t, e.Retry(context.Background()), ErrWrongState)

	close(gen.release)
	require.NoError(t, <-done)
	assert.Equal(t, StateAwaitingChoice, e.State())
}

func TestEngineIllustration(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{chapterWithChoices}}
	il := &stubIllustrator{ref: "data:image/png;base64,aGVsbG8="}
	e := newTestEngine(gen, WithIllustrator(il))

	require.NoError(t, e.Start(context.Background(), testSettings()))

	assert.Eventually(t, func() bool {
		return e.Snapshot().Image == il.ref
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEngineIllustrationFailureKeepsPrevious(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{chapterWithChoices}}
	il := &stubIllustrator{err: errors.New("horde busy")}
	e := newTestEngine(gen, WithIllustrator(il))

	require.NoError(t, e.Start(context.Background(), testSettings()))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, e.Snapshot().Image)
	assert.Equal(t, StateAwaitingChoice, e.State())
}

func TestEngineReset(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{chapterWithChoices}}
	e := newTestEngine(gen)
	require.NoError(t, e.Start(context.Background(), testSettings()))

	e.Reset()

	snap := e.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Zero(t, snap.Chapter)
	assert.Empty(t, snap.Chapters)
	assert.Zero(t, e.HistoryLen())

	_, ok := e.Artifact()
	assert.False(t, ok)
}

func TestEngineResetDiscardsInFlightResult(t *testing.T) {
	gen := &blockingGenerator{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	e := NewEngine(gen)

	done := make(chan error, 1)
	go func() { done <- e.Start(context.Background(), testSettings()) }()

	<-gen.started
	e.Reset()
	close(gen.release)
	require.NoError(t, <-done)

	// The late reply must not resurrect the cleared session.
	snap := e.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.Chapters)
	assert.Zero(t, e.HistoryLen())
}

func TestEngineAdvanceWrongState(t *testing.T) {
	e := newTestEngine(&scriptedGenerator{})
	assert.ErrorIs(t, e.Advance(context.Background(), "x"), ErrWrongState)
}
