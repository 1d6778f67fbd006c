package attempt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/classquiz/internal/grading"
	"github.com/mind-engage/classquiz/internal/quiz"
	"github.com/mind-engage/classquiz/internal/store"
	syncx "github.com/mind-engage/classquiz/internal/sync"
)

// Backend is the slice of persistence the attempt lifecycle needs.
type Backend interface {
	FindResult(ctx context.Context, quizID, studentID string) (quiz.Result, error)
	UpsertResult(ctx context.Context, r quiz.Result) error
	GetQuiz(ctx context.Context, id string) (quiz.Quiz, error)
	IsEnrolled(ctx context.Context, studentID, code string) (bool, error)
}

// EventRecorder receives lifecycle events; *syncx.EventRepo implements it.
type EventRecorder interface {
	Record(ctx context.Context, typ, key string, payload any) error
}

type Options struct {
	ViolationLimit int
	MinInterval    time.Duration
	Events         EventRecorder
	Grader         *grading.Grader
	Now            func() time.Time
}

type Service struct {
	backend  Backend
	registry *Registry
	events   EventRecorder
	cfg      sessionConfig
	now      func() time.Time
}

func NewService(b Backend, reg *Registry, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ViolationLimit <= 0 {
		opts.ViolationLimit = DefaultViolationLimit
	}
	if opts.MinInterval == 0 {
		opts.MinInterval = DefaultMinInterval
	}
	if reg == nil {
		reg = NewRegistry()
	}
	svc := &Service{backend: b, registry: reg, events: opts.Events, now: opts.Now}
	svc.cfg = sessionConfig{
		limit:       opts.ViolationLimit,
		minInterval: opts.MinInterval,
		grader:      opts.Grader,
		now:         opts.Now,
	}
	return svc
}

func (s *Service) Registry() *Registry { return s.registry }

// Start opens an attempt for studentID on quizID. A student with a live
// session for the quiz gets that session back.
func (s *Service) Start(ctx context.Context, quizID, studentID, studentName string) (*Session, error) {
	qz, err := s.backend.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("load quiz: %w", err)
	}
	if qz.Status != quiz.StatusAssigned || qz.ClassCode == "" {
		return nil, ErrQuizNotAssigned
	}
	ok, err := s.backend.IsEnrolled(ctx, studentID, qz.ClassCode)
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if !ok {
		return nil, ErrNotEnrolled
	}
	if _, err := s.backend.FindResult(ctx, quizID, studentID); err == nil {
		return nil, ErrAlreadyAttempted
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("find result: %w", err)
	}
	if cur, ok := s.registry.ForOwner(quizID, studentID); ok {
		return cur, nil
	}
	if qz.Closed(s.now()) {
		return nil, ErrQuizClosed
	}

	id := uuid.NewString()
	cfg := s.cfg
	cfg.persist = s.persister(id)
	sess := newSession(id, qz, studentID, studentName, cfg)
	if err := sess.Start(); err != nil {
		return nil, err
	}
	sess, added := s.registry.add(sess)
	if added {
		log.Printf("[attempt] started %s quiz=%s student=%s timed=%t", sess.ID, quizID, studentID, qz.Timed())
	}
	return sess, nil
}

// persister upserts the result, then drops the session and records the event.
func (s *Service) persister(sessionID string) PersistFunc {
	return func(ctx context.Context, r quiz.Result) error {
		if err := s.backend.UpsertResult(ctx, r); err != nil {
			log.Printf("[attempt] persist %s failed: %v", sessionID, err)
			return err
		}
		s.registry.finish(sessionID, s.now())
		log.Printf("[attempt] submitted %s quiz=%s student=%s reason=%s score=%d/%d violations=%d",
			sessionID, r.QuizID, r.StudentID, r.Reason, r.Score.Correct, r.Score.Total, r.Violations)
		if s.events != nil {
			payload := map[string]any{
				"quiz_id": r.QuizID, "student_id": r.StudentID, "percentage": r.Score.Percentage,
				"violations": r.Violations, "reason": r.Reason, "auto_submitted": r.AutoSubmitted,
			}
			if err := s.events.Record(ctx, syncx.EventResultSubmitted, r.QuizID+"|"+r.StudentID, payload); err != nil {
				log.Printf("[attempt] event log: %v", err)
			}
		}
		return nil
	}
}

// Session returns a live session owned by studentID. Sessions of other
// students are reported as not found.
func (s *Service) Session(id, studentID string) (*Session, error) {
	sess, ok := s.registry.Get(id)
	if !ok || sess.StudentID != studentID {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Submit submits a live session. A session that is no longer live but whose
// result is stored reports ErrAlreadySubmitted along with that result.
func (s *Service) Submit(ctx context.Context, id, studentID string, reason quiz.SubmitReason) (quiz.Result, error) {
	sess, err := s.Session(id, studentID)
	if err == nil {
		return sess.Submit(ctx, reason)
	}
	if err := s.checkFinished(id, studentID); !errors.Is(err, ErrAlreadySubmitted) {
		return quiz.Result{}, err
	}
	quizID, _, _ := s.registry.Finished(id)
	r, ferr := s.backend.FindResult(ctx, quizID, studentID)
	if ferr != nil {
		return quiz.Result{}, fmt.Errorf("find result: %w", ferr)
	}
	return r, ErrAlreadySubmitted
}

// checkFinished returns ErrAlreadySubmitted when id is a submitted attempt of
// studentID, and ErrSessionNotFound otherwise.
func (s *Service) checkFinished(id, studentID string) error {
	_, owner, ok := s.registry.Finished(id)
	if !ok || owner != studentID {
		return ErrSessionNotFound
	}
	return ErrAlreadySubmitted
}

// Observe routes an integrity signal to a live session. Signals for a
// submitted attempt are rejected with ErrAlreadySubmitted.
func (s *Service) Observe(ctx context.Context, id, studentID string, sig Signal) (Verdict, error) {
	sess, err := s.Session(id, studentID)
	if err != nil {
		return Verdict{}, s.checkFinished(id, studentID)
	}
	v, err := sess.Observe(ctx, sig)
	if v.Counted {
		log.Printf("[attempt] violation %d/%d on %s (%s)", v.Count, sess.monitor.Limit(), id, sig.Kind)
	}
	return v, err
}

// Discard drops an unsubmitted session without writing a result.
func (s *Service) Discard(id, studentID string) error {
	sess, err := s.Session(id, studentID)
	if err != nil {
		return err
	}
	sess.Discard()
	s.registry.Remove(id)
	log.Printf("[attempt] discarded %s quiz=%s student=%s", id, sess.QuizID, studentID)
	return nil
}

type SweepReport struct {
	Discarded int
	Submitted int
	Retried   int
	Failed    int
}

// Sweep discards untimed sessions idle longer than idleTTL and submits
// sessions whose quiz has closed. Sessions whose result failed to persist
// are retried. Timed sessions are left to their own clock.
func (s *Service) Sweep(ctx context.Context, idleTTL time.Duration) SweepReport {
	var rep SweepReport
	now := s.now()
	if idleTTL > 0 {
		s.registry.forgetFinished(now.Add(-idleTTL))
	}
	for _, sess := range s.registry.snapshot() {
		switch sess.State() {
		case StateFinalized:
			if _, err := sess.Submit(ctx, quiz.ReasonManual); err != nil && !errors.Is(err, ErrAlreadySubmitted) {
				rep.Failed++
				continue
			}
			rep.Retried++
		case StateActive:
			if sess.Quiz().Closed(now) {
				if _, err := sess.Submit(ctx, quiz.ReasonTimeout); err != nil {
					rep.Failed++
					continue
				}
				rep.Submitted++
				continue
			}
			if idleTTL > 0 && sess.discardIfIdle(now, idleTTL) {
				s.registry.Remove(sess.ID)
				rep.Discarded++
			}
		default:
			s.registry.Remove(sess.ID)
		}
	}
	return rep
}
