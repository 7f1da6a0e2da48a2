package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/vacancy-map/internal/pipeline"
	"github.com/sells-group/vacancy-map/internal/selection"
)

type session struct {
	ctrl     *selection.Controller
	lastSeen time.Time
}

// Sessions holds one selection controller per browser session in memory.
// Sessions idle longer than the TTL are evicted.
type Sessions struct {
	loader pipeline.Loader
	ttl    time.Duration
	now    func() time.Time

	mu sync.Mutex
	m  map[string]*session
}

// NewSessions creates a store. A non-positive ttl defaults to one hour.
func NewSessions(loader pipeline.Loader, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Sessions{loader: loader, ttl: ttl, now: time.Now, m: make(map[string]*session)}
}

// Create starts a new session.
func (s *Sessions) Create() (string, *selection.Controller) {
	id := uuid.New().String()
	ctrl := selection.NewController(s.loader)

	s.mu.Lock()
	s.m[id] = &session{ctrl: ctrl, lastSeen: s.now()}
	s.mu.Unlock()
	return id, ctrl
}

// Get returns the session's controller and marks it active.
func (s *Sessions) Get(id string) (*selection.Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[id]
	if !ok {
		return nil, false
	}
	sess.lastSeen = s.now()
	return sess.ctrl, true
}

// Delete ends a session.
func (s *Sessions) Delete(id string) bool {
	s.mu.Lock()
	sess, ok := s.m[id]
	delete(s.m, id)
	s.mu.Unlock()
	if ok {
		sess.ctrl.Close()
	}
	return ok
}

// Len reports the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// Sweep evicts idle sessions and returns how many were removed.
func (s *Sessions) Sweep() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	var expired []*session
	for id, sess := range s.m {
		if sess.lastSeen.Before(cutoff) {
			expired = append(expired, sess)
			delete(s.m, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		sess.ctrl.Close()
	}
	if len(expired) > 0 {
		zap.L().Info("server: evicted idle sessions", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Run sweeps periodically until ctx ends, then closes every session.
func (s *Sessions) Run(ctx context.Context) {
	interval := s.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			all := s.m
			s.m = make(map[string]*session)
			s.mu.Unlock()
			for _, sess := range all {
				sess.ctrl.Close()
			}
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
