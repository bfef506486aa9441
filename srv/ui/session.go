package ui

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	storyweaver "github.com/opd-ai/storyweaver/src"
)

// StorySession binds one reader's engine to their websocket and keeps a
// transcript of engine events for replay on reconnect.
type StorySession struct {
	ID     string
	engine *storyweaver.Engine
	log    zerolog.Logger

	mu         sync.RWMutex
	events     []storyweaver.Event
	conn       *websocket.Conn
	timer      *storyweaver.Countdown
	lastActive time.Time
}

func newStorySession(id string, deps Deps, log zerolog.Logger) *StorySession {
	s := &StorySession{ID: id, log: log, lastActive: time.Now()}

	opts := []storyweaver.EngineOption{
		storyweaver.WithEmitter(s.record),
		storyweaver.WithLogger(log),
	}
	if deps.Illustrator != nil {
		opts = append(opts, storyweaver.WithIllustrator(deps.Illustrator))
	}
	if deps.Store != nil {
		opts = append(opts, storyweaver.WithStore(deps.Store))
	}
	s.engine = storyweaver.NewEngine(deps.Generator, opts...)
	return s
}

// record appends the event to the transcript and pushes it to the attached
// socket, if any. A write failure drops the socket; the transcript replays
// on the next connect.
func (s *StorySession) record(ev storyweaver.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	if ev.Type == storyweaver.EventFinished && s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.conn == nil {
		return
	}
	if err := s.conn.WriteJSON(ev); err != nil {
		s.log.Warn().Err(err).Msg("websocket write failed")
		s.conn.Close()
		s.conn = nil
	}
}

// sendLive pushes an event to the attached socket without recording it.
// Used for countdown ticks, which carry no story state worth replaying.
func (s *StorySession) sendLive(ev storyweaver.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}
	if err := s.conn.WriteJSON(ev); err != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// startCountdown runs the cosmetic reading clock for the story's target
// duration. It never influences the cycle; it just ticks at the client.
func (s *StorySession) startCountdown(minutes int) {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	t := storyweaver.NewCountdown(time.Duration(minutes)*time.Minute, func(rem time.Duration) {
		s.sendLive(storyweaver.Event{Type: storyweaver.EventTimer, Remaining: int(rem.Seconds())})
	})
	s.timer = t
	s.mu.Unlock()
	t.Start()
}

func (s *StorySession) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *StorySession) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// attachConn replays the transcript on the new socket and installs it,
// closing any previous one.
func (s *StorySession) attachConn(conn *websocket.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if err := conn.WriteJSON(ev); err != nil {
			return err
		}
	}
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = conn
	return nil
}

func (s *StorySession) detachConn(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
}

// ping keeps the connection alive. Serialized with record through the
// session lock because gorilla connections allow one writer at a time.
func (s *StorySession) ping(conn *websocket.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != conn {
		return websocket.ErrCloseSent
	}
	return conn.WriteMessage(websocket.PingMessage, nil)
}

func (s *StorySession) closeConn() {
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
}

func (s *StorySession) clearTranscript() {
	s.mu.Lock()
	s.events = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
}
