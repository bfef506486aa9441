package ui

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storyweaver "github.com/opd-ai/storyweaver/src"
)

const testChapter = `## Chapter 1: The Door

An iron door stood half open.

## Choices
- Push it wide
- Slip through the gap`

const testFinale = "The door closed behind them forever.\n\nThe End"

type scriptedGenerator struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (g *scriptedGenerator) GenerateStory(context.Context, []storyweaver.Message) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.calls
	g.calls++
	if i < len(g.replies) {
		return g.replies[i], nil
	}
	return g.replies[len(g.replies)-1], nil
}

type memStore struct {
	mu   sync.Mutex
	arts []storyweaver.StoryArtifact
}

func (m *memStore) Append(art storyweaver.StoryArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.arts = append(m.arts, art)
	return nil
}

func (m *memStore) ListAll() []storyweaver.StoryArtifact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storyweaver.StoryArtifact(nil), m.arts...)
}

func (m *memStore) ListBest(limit int) []storyweaver.StoryArtifact {
	out := m.ListAll()
	sort.Slice(out, func(i, j int) bool { return out[i].Rating > out[j].Rating })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

func newTestUI(gen storyweaver.TextGenerator, store Store) *StoryUI {
	return NewStoryUI(Deps{
		Generator: gen,
		Store:     store,
		Logger:    zerolog.Nop(),
	})
}

func postJSON(t *testing.T, ui *StoryUI, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ui.ServeHTTP(rec, req)
	return rec
}

func getPath(ui *StoryUI, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	ui.ServeHTTP(rec, req)
	return rec
}

func startStory(t *testing.T, ui *StoryUI) string {
	t.Helper()
	rec := postJSON(t, ui, "/story/start", map[string]any{
		"theme": "pirates", "age": 30, "duration": 10,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID
}

func waitForState(t *testing.T, ui *StoryUI, sessionID string, want storyweaver.State) storyweaver.Snapshot {
	t.Helper()
	var snap storyweaver.Snapshot
	require.Eventually(t, func() bool {
		rec := getPath(ui, "/story/"+sessionID)
		if rec.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
			return false
		}
		return snap.State == want
	}, 3*time.Second, 10*time.Millisecond)
	return snap
}

func TestStartAndSnapshot(t *testing.T) {
	ui := newTestUI(&scriptedGenerator{replies: []string{testChapter}}, &memStore{})

	sessionID := startStory(t, ui)
	snap := waitForState(t, ui, sessionID, storyweaver.StateAwaitingChoice)

	assert.Equal(t, 1, snap.Chapter)
	require.Len(t, snap.Chapters, 1)
	assert.Contains(t, snap.Chapters[0], "An iron door stood half open.")
	assert.Equal(t, []string{"Push it wide", "Slip through the gap"}, snap.Choices)
}

func TestStartRejectsBadSettings(t *testing.T) {
	ui := newTestUI(&scriptedGenerator{replies: []string{testChapter}}, &memStore{})

	rec := postJSON(t, ui, "/story/start", map[string]any{"theme": "", "age": 30, "duration": 10})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestChoiceAdvancesStory(t *testing.T) {
	ui := newTestUI(&scriptedGenerator{replies: []string{testChapter, testChapter}}, &memStore{})

	sessionID := startStory(t, ui)
	waitForState(t, ui, sessionID, storyweaver.StateAwaitingChoice)

	rec := postJSON(t, ui, "/story/"+sessionID+"/choice", map[string]string{"choice": "Push it wide"})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		var snap storyweaver.Snapshot
		r := getPath(ui, "/story/"+sessionID)
		return json.Unmarshal(r.Body.Bytes(), &snap) == nil && snap.Chapter == 2
	}, 3*time.Second, 10*time.Millisecond)
}

func TestChoiceWithoutPending(t *testing.T) {
	ui := newTestUI(&scriptedGenerator{replies: []string{testChapter}}, &memStore{})

	sessionID := startStory(t, ui)
	waitForState(t, ui, sessionID, storyweaver.StateAwaitingChoice)

	// Reset first, then a choice has nothing to act on.
	rec := postJSON(t, ui, "/story/"+sessionID+"/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, ui, "/story/"+sessionID+"/choice", map[string]string{"choice": "x"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRatePersistsOnce(t *testing.T) {
	store := &memStore{}
	ui := newTestUI(&scriptedGenerator{replies: []string{testChapter, testFinale}}, store)

	sessionID := startStory(t, ui)
	waitForState(t, ui, sessionID, storyweaver.StateAwaitingChoice)

	rec := postJSON(t, ui, "/story/"+sessionID+"/choice", map[string]string{"choice": ""})
	require.Equal(t, http.StatusAccepted, rec.Code)
	waitForState(t, ui, sessionID, storyweaver.StateTerminal)

	rec = postJSON(t, ui, "/story/"+sessionID+"/rate", map[string]int{"rating": 4})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, ui, "/story/"+sessionID+"/rate", map[string]int{"rating": 1})
	assert.Equal(t, http.StatusOK, rec.Code)

	saved := store.ListAll()
	require.Len(t, saved, 1)
	assert.Equal(t, 4, saved[0].Rating)
}

func TestRateBeforeFinish(t *testing.T) {
	ui := newTestUI(&scriptedGenerator{replies: []string{testChapter}}, &memStore{})

	sessionID := startStory(t, ui)
	waitForState(t, ui, sessionID, storyweaver.StateAwaitingChoice)

	rec := postJSON(t, ui, "/story/"+sessionID+"/rate", map[string]int{"rating": 5})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestExportFinishedStory(t *testing.T) {
	ui := newTestUI(&scriptedGenerator{replies: []string{testChapter, testFinale}}, &memStore{})

	sessionID := startStory(t, ui)
	waitForState(t, ui, sessionID, storyweaver.StateAwaitingChoice)
	postJSON(t, ui, "/story/"+sessionID+"/choice", map[string]string{"choice": ""})
	waitForState(t, ui, sessionID, storyweaver.StateTerminal)

	rec := getPath(ui, "/story/"+sessionID+"/export")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "The door closed behind them forever.")

	rec = getPath(ui, "/story/"+sessionID+"/export.pdf")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}

func TestExportUnfinishedStory(t *testing.T) {
	ui := newTestUI(&scriptedGenerator{replies: []string{testChapter}}, &memStore{})

	sessionID := startStory(t, ui)
	waitForState(t, ui, sessionID, storyweaver.StateAwaitingChoice)

	rec := getPath(ui, "/story/"+sessionID+"/export")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStoriesListing(t *testing.T) {
	store := &memStore{}
	store.Append(storyweaver.StoryArtifact{Text: "low", Rating: 2, Date: time.Now()})
	store.Append(storyweaver.StoryArtifact{Text: "high", Rating: 5, Date: time.Now()})
	ui := newTestUI(&scriptedGenerator{replies: []string{testChapter}}, store)

	rec := getPath(ui, "/stories?sort=best&limit=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []storyweaver.StoryArtifact
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "high", got[0].Text)
}

func TestSnapshotBadSession(t *testing.T) {
	ui := newTestUI(&scriptedGenerator{replies: []string{testChapter}}, &memStore{})

	rec := getPath(ui, "/story/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = getPath(ui, "/story/d4c0ffee-0000-4000-8000-000000000000")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	ui := newTestUI(&scriptedGenerator{replies: []string{testChapter}}, &memStore{})
	rec := getPath(ui, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
