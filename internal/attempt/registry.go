package attempt

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/mind-engage/classquiz/internal/quiz"
)

// tickInterval is one second of attempt time.
const tickInterval = time.Second

type ownerKey struct{ quizID, studentID string }

type finishedEntry struct {
	owner ownerKey
	at    time.Time
}

// Registry holds the live sessions of this process, plus a short memory of
// submitted attempt ids so late requests can be answered.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byOwner  map[ownerKey]string
	finished map[string]finishedEntry

	tick    time.Duration
	pending sync.WaitGroup
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: map[string]*Session{},
		byOwner:  map[ownerKey]string{},
		finished: map[string]finishedEntry{},
		tick:     tickInterval,
	}
}

// add stores s unless the same student already has a live session for the
// quiz, in which case that session is returned instead.
func (r *Registry) add(s *Session) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := ownerKey{s.QuizID, s.StudentID}
	if id, ok := r.byOwner[k]; ok {
		if cur, ok := r.sessions[id]; ok {
			return cur, false
		}
	}
	r.sessions[s.ID] = s
	r.byOwner[k] = s.ID
	return s, true
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) ForOwner(quizID, studentID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byOwner[ownerKey{quizID, studentID}]
	if !ok {
		return nil, false
	}
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.sessions, id)
	k := ownerKey{s.QuizID, s.StudentID}
	if r.byOwner[k] == id {
		delete(r.byOwner, k)
	}
}

// finish removes a submitted session and remembers who owned it.
func (r *Registry) finish(id string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return
	}
	k := ownerKey{s.QuizID, s.StudentID}
	delete(r.sessions, id)
	if r.byOwner[k] == id {
		delete(r.byOwner, k)
	}
	r.finished[id] = finishedEntry{owner: k, at: at}
}

// Finished reports the quiz and student of a submitted attempt id.
func (r *Registry) Finished(id string) (quizID, studentID string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.finished[id]
	return e.owner.quizID, e.owner.studentID, ok
}

func (r *Registry) forgetFinished(before time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.finished {
		if e.at.Before(before) {
			delete(r.finished, id)
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// snapshot copies the session list so callers never hold the registry lock
// while a session runs its own persistence.
func (r *Registry) snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// TickAll ticks every session once. Sessions that time out are submitted
// in their own goroutine so a slow result write never delays other clocks.
func (r *Registry) TickAll(ctx context.Context) {
	for _, s := range r.snapshot() {
		if !s.advance() {
			continue
		}
		r.pending.Add(1)
		go func(s *Session) {
			defer r.pending.Done()
			_, err := s.Submit(context.WithoutCancel(ctx), quiz.ReasonTimeout)
			if err != nil && !errors.Is(err, ErrAlreadySubmitted) {
				log.Printf("[attempt] timeout submit %s: %v", s.ID, err)
			}
		}(s)
	}
}

// Run ticks all sessions once per second until ctx is cancelled, then waits
// for in-flight timeout submits.
func (r *Registry) Run(ctx context.Context) {
	t := time.NewTicker(r.tick)
	defer t.Stop()
	defer r.pending.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.TickAll(ctx)
		}
	}
}
