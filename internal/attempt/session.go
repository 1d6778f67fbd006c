package attempt

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/mind-engage/classquiz/internal/grading"
	"github.com/mind-engage/classquiz/internal/quiz"
)

var (
	ErrAlreadyAttempted = errors.New("quiz already attempted")
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	ErrNotStarted       = errors.New("attempt not started")
	ErrSessionNotFound  = errors.New("attempt session not found")
	ErrQuizNotAssigned  = errors.New("quiz not assigned to a class")
	ErrQuizClosed       = errors.New("quiz closed")
	ErrNotEnrolled      = errors.New("student not enrolled in class")
)

// UntimedSentinel is the remaining time reported for untimed quizzes. It is
// never decremented.
const UntimedSentinel = math.MaxInt32

type State string

const (
	StateIdle      State = "idle"
	StateActive    State = "active"
	StateFinalized State = "finalized" // scored, not yet persisted
	StateSubmitted State = "submitted"
	StateDiscarded State = "discarded"
)

// PersistFunc writes a finalized result. It must be idempotent for the same
// (quiz, student) pair.
type PersistFunc func(ctx context.Context, r quiz.Result) error

// Session is one student's run through a quiz. All methods are safe for
// concurrent use and are applied one at a time.
type Session struct {
	ID          string
	QuizID      string
	StudentID   string
	StudentName string

	mu        sync.Mutex
	quiz      quiz.Quiz
	state     State
	index     int
	answers   map[int]string
	remaining int
	elapsed   int
	monitor   *Monitor
	result    *quiz.Result
	lastSeen  time.Time
	startedAt time.Time

	grader  *grading.Grader
	persist PersistFunc
	now     func() time.Time
}

type sessionConfig struct {
	limit       int
	minInterval time.Duration
	grader      *grading.Grader
	persist     PersistFunc
	now         func() time.Time
}

func newSession(id string, qz quiz.Quiz, studentID, studentName string, cfg sessionConfig) *Session {
	if cfg.now == nil {
		cfg.now = time.Now
	}
	if cfg.grader == nil {
		cfg.grader = grading.NewDefaultGrader()
	}
	return &Session{
		ID:          id,
		QuizID:      qz.ID,
		StudentID:   studentID,
		StudentName: studentName,
		quiz:        qz,
		state:       StateIdle,
		answers:     map[int]string{},
		monitor:     NewMonitor(cfg.limit, cfg.minInterval),
		grader:      cfg.grader,
		persist:     cfg.persist,
		now:         cfg.now,
	}
}

// View is a point-in-time copy of a session for rendering.
type View struct {
	ID         string         `json:"id"`
	QuizID     string         `json:"quiz_id"`
	StudentID  string         `json:"student_id"`
	State      State          `json:"state"`
	Index      int            `json:"current_index"`
	Questions  int            `json:"question_count"`
	Answers    map[int]string `json:"answers"`
	Timed      bool           `json:"timed"`
	Remaining  int            `json:"remaining_seconds"`
	Elapsed    int            `json:"elapsed_seconds"`
	Violations int            `json:"violations"`
	Limit      int            `json:"violation_limit"`
	Monitor    MonitorState   `json:"monitor"`
	StartedAt  time.Time      `json:"started_at"`
	Result     *quiz.Result   `json:"result,omitempty"`
}

func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return fmt.Errorf("start in state %s: %w", s.state, ErrAlreadySubmitted)
	}
	if s.quiz.Timed() {
		s.remaining = *s.quiz.TimerMinutes * 60
	} else {
		s.remaining = UntimedSentinel
	}
	s.state = StateActive
	s.startedAt = s.now()
	s.lastSeen = s.startedAt
	s.monitor.Arm()
	return nil
}

// checkActive maps a non-active state to the error callers see.
func (s *Session) checkActive() error {
	switch s.state {
	case StateActive:
		return nil
	case StateIdle, StateDiscarded:
		return ErrNotStarted
	default:
		return ErrAlreadySubmitted
	}
}

// RecordAnswer overwrites the answer at index. Out-of-range indexes are ignored.
func (s *Session) RecordAnswer(index int, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkActive(); err != nil {
		return err
	}
	s.lastSeen = s.now()
	if index < 0 || index >= len(s.quiz.Questions) {
		return nil
	}
	s.answers[index] = value
	return nil
}

// Advance moves the current question by one in the sign of direction,
// clamped to the question range. It returns the new index.
func (s *Session) Advance(direction int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkActive(); err != nil {
		return s.index, err
	}
	s.lastSeen = s.now()
	switch {
	case direction > 0 && s.index < len(s.quiz.Questions)-1:
		s.index++
	case direction < 0 && s.index > 0:
		s.index--
	}
	return s.index, nil
}

// Tick advances the clock by one second. A timed session that runs out is
// submitted with ReasonTimeout. Ticks on inactive sessions do nothing.
func (s *Session) Tick(ctx context.Context) error {
	if !s.advance() {
		return nil
	}
	_, err := s.Submit(ctx, quiz.ReasonTimeout)
	if errors.Is(err, ErrAlreadySubmitted) {
		return nil
	}
	return err
}

// advance moves the clock one second and reports whether a timed session
// just ran out. An expired session is finalized but not yet persisted.
func (s *Session) advance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return false
	}
	s.elapsed++
	if !s.quiz.Timed() {
		return false
	}
	if s.remaining > 0 {
		s.remaining--
	}
	if s.remaining > 0 {
		return false
	}
	s.finalize(quiz.ReasonTimeout)
	return true
}

// Observe feeds one integrity signal to the monitor. The signal that
// exhausts the violation budget submits the session with ReasonViolation.
func (s *Session) Observe(ctx context.Context, sig Signal) (Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkActive(); err != nil {
		return Verdict{Count: s.monitor.Count()}, err
	}
	if sig.At.IsZero() {
		sig.At = s.now()
	}
	s.lastSeen = s.now()
	v := s.monitor.Observe(sig)
	if v.Terminate {
		if _, err := s.submitLocked(ctx, quiz.ReasonViolation); err != nil {
			return v, err
		}
	}
	return v, nil
}

// Submit finalizes and persists the attempt. Once persisted, further calls
// return the stored result with ErrAlreadySubmitted. When persisting fails
// the session stays finalized and a later Submit retries the same result.
func (s *Session) Submit(ctx context.Context, reason quiz.SubmitReason) (quiz.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitLocked(ctx, reason)
}

func (s *Session) submitLocked(ctx context.Context, reason quiz.SubmitReason) (quiz.Result, error) {
	switch s.state {
	case StateIdle, StateDiscarded:
		return quiz.Result{}, ErrNotStarted
	case StateSubmitted:
		return *s.result, ErrAlreadySubmitted
	case StateActive:
		s.finalize(reason)
	}
	if s.persist != nil {
		if err := s.persist(ctx, *s.result); err != nil {
			return *s.result, fmt.Errorf("persist result: %w", err)
		}
	}
	s.state = StateSubmitted
	return *s.result, nil
}

func (s *Session) finalize(reason quiz.SubmitReason) {
	s.monitor.Disarm()
	answers := make(map[int]string, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}
	score := s.grader.Score(s.quiz, answers)
	s.result = &quiz.Result{
		QuizID:        s.quiz.ID,
		StudentID:     s.StudentID,
		StudentName:   s.StudentName,
		QuizTitle:     s.quiz.Title,
		ClassCode:     s.quiz.ClassCode,
		Answers:       answers,
		Score:         &score,
		SubmittedAt:   s.now().UTC(),
		TimeTaken:     s.elapsed,
		Violations:    s.monitor.Count(),
		AutoSubmitted: reason != quiz.ReasonManual,
		Reason:        reason,
	}
	s.state = StateFinalized
}

// Discard ends an unsubmitted attempt without writing anything.
func (s *Session) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitor.Disarm()
	if s.state == StateIdle || s.state == StateActive {
		s.state = StateDiscarded
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	answers := make(map[int]string, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}
	v := View{
		ID: s.ID, QuizID: s.QuizID, StudentID: s.StudentID,
		State: s.state, Index: s.index, Questions: len(s.quiz.Questions), Answers: answers,
		Timed: s.quiz.Timed(), Remaining: s.remaining, Elapsed: s.elapsed,
		Violations: s.monitor.Count(), Limit: s.monitor.Limit(), Monitor: s.monitor.State(),
		StartedAt: s.startedAt,
	}
	if s.result != nil {
		r := *s.result
		v.Result = &r
	}
	return v
}

// Quiz returns the quiz the session runs against.
func (s *Session) Quiz() quiz.Quiz { return s.quiz }

// discardIfIdle discards an untimed active session nobody has touched for
// longer than ttl. Timed sessions run until their clock expires.
func (s *Session) discardIfIdle(now time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive || s.quiz.Timed() || now.Sub(s.lastSeen) <= ttl {
		return false
	}
	s.monitor.Disarm()
	s.state = StateDiscarded
	return true
}
