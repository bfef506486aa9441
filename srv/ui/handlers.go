package ui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	storyweaver "github.com/opd-ai/storyweaver/src"
)

// generateTimeout bounds a single chapter request; the engine restores a
// retryable state when it fires.
const generateTimeout = 5 * time.Minute

func (ui *StoryUI) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStart begins a new story for the caller's session. Generation runs
// asynchronously; the client follows along over the websocket or by polling
// the snapshot endpoint.
func (ui *StoryUI) handleStart(w http.ResponseWriter, r *http.Request) {
	var settings storyweaver.StorySettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := settings.Validate(); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	var sessionID string
	if cookie, err := r.Cookie("session_id"); err == nil && isValidSession(cookie.Value) {
		sessionID = cookie.Value
	} else {
		sessionID = uuid.New().String()
	}
	w.Header().Set("X-Session-Id", sessionID)
	http.SetCookie(w, &http.Cookie{
		Name:     "session_id",
		Value:    sessionID,
		Path:     "/",
		MaxAge:   86400,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	sess := ui.getOrCreateSession(sessionID)
	sess.touch()

	if sess.engine.State() == storyweaver.StateRendering {
		jsonError(w, http.StatusConflict, "a chapter is already being generated")
		return
	}

	// Starting over always begins from a clean slate.
	sess.engine.Reset()
	sess.clearTranscript()
	sess.startCountdown(settings.Duration)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), generateTimeout)
		defer cancel()
		if err := sess.engine.Start(ctx, settings); err != nil {
			sess.log.Error().Err(err).Msg("story start failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"sessionId": sessionID})
}

func (ui *StoryUI) sessionFromRequest(w http.ResponseWriter, r *http.Request) (*StorySession, bool) {
	sessionID := chi.URLParam(r, "sessionID")
	if !isValidSession(sessionID) {
		jsonError(w, http.StatusBadRequest, "invalid session id")
		return nil, false
	}
	sess, ok := ui.lookupSession(sessionID)
	if !ok {
		jsonError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	sess.touch()
	return sess, true
}

func (ui *StoryUI) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	sess, ok := ui.sessionFromRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.engine.Snapshot())
}

// handleChoice commits the reader's pick and kicks off the next chapter. An
// empty choice is the generic continue action.
func (ui *StoryUI) handleChoice(w http.ResponseWriter, r *http.Request) {
	sess, ok := ui.sessionFromRequest(w, r)
	if !ok {
		return
	}

	var req struct {
		Choice string `json:"choice"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if sess.engine.State() != storyweaver.StateAwaitingChoice {
		jsonError(w, http.StatusConflict, "no choice is pending")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), generateTimeout)
		defer cancel()
		if err := sess.engine.Advance(ctx, req.Choice); err != nil {
			sess.log.Error().Err(err).Msg("chapter generation failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "generating"})
}

// handleRetry re-issues a failed chapter request with the same context.
func (ui *StoryUI) handleRetry(w http.ResponseWriter, r *http.Request) {
	sess, ok := ui.sessionFromRequest(w, r)
	if !ok {
		return
	}

	if sess.engine.State() != storyweaver.StateAwaitingChapter {
		jsonError(w, http.StatusConflict, "nothing to retry")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), generateTimeout)
		defer cancel()
		if err := sess.engine.Retry(ctx); err != nil {
			sess.log.Error().Err(err).Msg("chapter retry failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "generating"})
}

func (ui *StoryUI) handleRate(w http.ResponseWriter, r *http.Request) {
	sess, ok := ui.sessionFromRequest(w, r)
	if !ok {
		return
	}

	var req struct {
		Rating int `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := sess.engine.Rate(req.Rating); err != nil {
		if errors.Is(err, storyweaver.ErrWrongState) {
			jsonError(w, http.StatusConflict, "story is not finished")
			return
		}
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (ui *StoryUI) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := ui.sessionFromRequest(w, r)
	if !ok {
		return
	}
	sess.engine.Reset()
	sess.clearTranscript()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (ui *StoryUI) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := ui.sessionFromRequest(w, r)
	if !ok {
		return
	}
	art, ok := sess.engine.Artifact()
	if !ok {
		jsonError(w, http.StatusConflict, "story is not finished")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="story.txt"`)
	if err := storyweaver.ExportText(w, art); err != nil {
		sess.log.Error().Err(err).Msg("text export failed")
	}
}

func (ui *StoryUI) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	sess, ok := ui.sessionFromRequest(w, r)
	if !ok {
		return
	}
	art, ok := sess.engine.Artifact()
	if !ok {
		jsonError(w, http.StatusConflict, "story is not finished")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="story.pdf"`)
	if err := storyweaver.ExportPDF(w, "Your Story", art); err != nil {
		sess.log.Error().Err(err).Msg("pdf export failed")
	}
}

// handleStories lists saved stories: append order by default, best-rated
// first with ?sort=best.
func (ui *StoryUI) handleStories(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	arts := []storyweaver.StoryArtifact{}
	if ui.deps.Store != nil {
		var got []storyweaver.StoryArtifact
		if r.URL.Query().Get("sort") == "best" {
			got = ui.deps.Store.ListBest(limit)
		} else {
			got = ui.deps.Store.ListAll()
			if limit > 0 && limit < len(got) {
				got = got[:limit]
			}
		}
		if got != nil {
			arts = got
		}
	}
	writeJSON(w, http.StatusOK, arts)
}
