package ui

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	storyweaver "github.com/opd-ai/storyweaver/src"
)

// Store is the persistence surface the UI needs: the engine's append
// contract plus the best-stories listing.
type Store interface {
	storyweaver.StoryStore
	ListBest(limit int) []storyweaver.StoryArtifact
}

// Deps wires the UI to its collaborators. Generator is required; the rest
// degrade gracefully when nil.
type Deps struct {
	Generator   storyweaver.TextGenerator
	Illustrator storyweaver.Illustrator
	Store       Store
	SessionTTL  time.Duration
	Logger      zerolog.Logger
}

// StoryUI owns every reader session and the HTTP surface around them.
type StoryUI struct {
	router    chi.Router
	deps      Deps
	log       zerolog.Logger
	sessions  map[string]*StorySession
	sessionsM sync.RWMutex
	finished  *cache.Cache
	ttl       time.Duration
}

func NewStoryUI(deps Deps) *StoryUI {
	ttl := deps.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	ui := &StoryUI{
		router:   chi.NewRouter(),
		deps:     deps,
		log:      deps.Logger,
		sessions: make(map[string]*StorySession),
		finished: cache.New(ttl, 1*time.Hour),
		ttl:      ttl,
	}
	ui.setupRoutes()
	ui.startCleanup()
	return ui
}

func (ui *StoryUI) startCleanup() {
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			ui.cleanupIdleSessions()
		}
	}()
}

// cleanupIdleSessions drops sessions nobody has touched within the TTL.
// Finished stories are parked in the cache so a late export still works.
func (ui *StoryUI) cleanupIdleSessions() {
	ui.sessionsM.Lock()
	defer ui.sessionsM.Unlock()
	for id, sess := range ui.sessions {
		if time.Since(sess.LastActive()) < ui.ttl {
			continue
		}
		sess.closeConn()
		if _, ok := sess.engine.Artifact(); ok {
			ui.finished.Set(id, sess, cache.DefaultExpiration)
		}
		delete(ui.sessions, id)
	}
}

// lookupSession finds an active session, falling back to the finished cache.
func (ui *StoryUI) lookupSession(id string) (*StorySession, bool) {
	ui.sessionsM.RLock()
	sess, ok := ui.sessions[id]
	ui.sessionsM.RUnlock()
	if ok {
		return sess, true
	}
	if cached, found := ui.finished.Get(id); found {
		return cached.(*StorySession), true
	}
	return nil, false
}

func (ui *StoryUI) getOrCreateSession(id string) *StorySession {
	ui.sessionsM.Lock()
	defer ui.sessionsM.Unlock()
	if sess, ok := ui.sessions[id]; ok {
		return sess
	}
	sess := newStorySession(id, ui.deps, ui.log.With().Str("session", id).Logger())
	ui.sessions[id] = sess
	return sess
}

func (ui *StoryUI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ui.router.ServeHTTP(w, r)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Requested-With")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Expose-Headers", "X-Session-Id")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (ui *StoryUI) setupRoutes() {
	ui.router.Use(middleware.Logger)
	ui.router.Use(middleware.Recoverer)
	ui.router.Use(corsMiddleware)

	// Session management middleware
	ui.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie("session_id")
			if err != nil || cookie.Value == "" {
				sessionID := uuid.New().String()
				http.SetCookie(w, &http.Cookie{
					Name:     "session_id",
					Value:    sessionID,
					Path:     "/",
					MaxAge:   86400, // 24 hours
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r)
		})
	})

	// Routes
	ui.router.Get("/healthz", ui.handleHealth)
	ui.router.Post("/story/start", ui.handleStart)
	ui.router.Get("/story/{sessionID}", ui.handleSnapshot)
	ui.router.Post("/story/{sessionID}/choice", ui.handleChoice)
	ui.router.Post("/story/{sessionID}/retry", ui.handleRetry)
	ui.router.Post("/story/{sessionID}/rate", ui.handleRate)
	ui.router.Post("/story/{sessionID}/reset", ui.handleReset)
	ui.router.Get("/story/{sessionID}/export", ui.handleExport)
	ui.router.Get("/story/{sessionID}/export.pdf", ui.handleExportPDF)
	ui.router.Get("/stories", ui.handleStories)
	ui.router.Get("/ws/{sessionID}", ui.handleWebSocket)
	ui.router.Post("/api/generate-story", ui.handleGenerateStory)
	ui.router.Post("/api/generate-image", ui.handleGenerateImage)

	fileServer := http.FileServer(http.Dir("static"))
	ui.router.Handle("/static/*", http.StripPrefix("/static/", fileServer))
	ui.router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "static/index.html")
	})
}
