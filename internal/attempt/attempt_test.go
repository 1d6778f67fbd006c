package attempt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mind-engage/classquiz/internal/quiz"
	"github.com/mind-engage/classquiz/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock { return &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// countingBackend wraps the memory store, counting writes and optionally failing them.
type countingBackend struct {
	store.Store
	mu      sync.Mutex
	writes  int
	failing bool
}

func (b *countingBackend) UpsertResult(ctx context.Context, r quiz.Result) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing {
		return errors.New("disk full")
	}
	b.writes++
	return b.Store.UpsertResult(ctx, r)
}

func (b *countingBackend) Writes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes
}

func intp(v int) *int { return &v }

type fixture struct {
	backend *countingBackend
	svc     *Service
	clock   *fakeClock
	quizID  string
}

func setup(t *testing.T, timerMinutes *int) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := store.NewInMemoryStore()
	if _, err := mem.CreateClass(ctx, quiz.Class{Code: "DCIT26", Name: "Intro"}); err != nil {
		t.Fatalf("class: %v", err)
	}
	qz, err := mem.PutQuiz(ctx, quiz.Quiz{
		Title:        "Basics",
		Points:       intp(100),
		TimerMinutes: timerMinutes,
		Questions: []quiz.Question{
			{Text: "1", Type: quiz.ShortAnswer, AnswerKey: "A"},
			{Text: "2", Type: quiz.ShortAnswer, AnswerKey: "B"},
			{Text: "3", Type: quiz.ShortAnswer, AnswerKey: "C"},
			{Text: "4", Type: quiz.ShortAnswer, AnswerKey: "D"},
		},
	})
	if err != nil {
		t.Fatalf("quiz: %v", err)
	}
	if _, err := mem.AssignQuiz(ctx, qz.ID, "DCIT26"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := mem.Enroll(ctx, "stu-1", "DCIT26"); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	b := &countingBackend{Store: mem}
	clk := newClock()
	svc := NewService(b, NewRegistry(), Options{Now: clk.Now})
	return &fixture{backend: b, svc: svc, clock: clk, quizID: qz.ID}
}

func (f *fixture) start(t *testing.T) *Session {
	t.Helper()
	s, err := f.svc.Start(context.Background(), f.quizID, "stu-1", "Ana")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return s
}

func TestSubmitScoresFourQuestionExample(t *testing.T) {
	f := setup(t, nil)
	s := f.start(t)
	for i, a := range []string{"A", "B", "X", "D"} {
		if err := s.RecordAnswer(i, a); err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
	}
	r, err := s.Submit(context.Background(), quiz.ReasonManual)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	want := quiz.Score{Correct: 3, Total: 4, Percentage: 75, Points: 75, MaxPoints: 100}
	if *r.Score != want {
		t.Fatalf("score = %+v, want %+v", *r.Score, want)
	}
	if r.AutoSubmitted || r.Reason != quiz.ReasonManual || r.ClassCode != "DCIT26" {
		t.Fatalf("unexpected result %+v", r)
	}
	stored, err := f.backend.FindResult(context.Background(), f.quizID, "stu-1")
	if err != nil || stored.Score.Correct != 3 {
		t.Fatalf("stored = %+v, %v", stored, err)
	}
}

func TestSubmitTwiceWritesOnce(t *testing.T) {
	f := setup(t, nil)
	s := f.start(t)
	ctx := context.Background()
	first, err := s.Submit(ctx, quiz.ReasonManual)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	again, err := s.Submit(ctx, quiz.ReasonManual)
	if !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("second submit err = %v", err)
	}
	if !again.SubmittedAt.Equal(first.SubmittedAt) {
		t.Fatalf("second submit returned a different result")
	}
	if f.backend.Writes() != 1 {
		t.Fatalf("writes = %d, want 1", f.backend.Writes())
	}

	// via the service once the session left the registry
	r, err := f.svc.Submit(ctx, s.ID, "stu-1", quiz.ReasonManual)
	if !errors.Is(err, ErrAlreadySubmitted) || r.QuizID != f.quizID {
		t.Fatalf("service submit after finish: %+v %v", r, err)
	}
	if f.backend.Writes() != 1 {
		t.Fatalf("writes = %d, want 1", f.backend.Writes())
	}
}

func TestStartAfterResultIsAlreadyAttempted(t *testing.T) {
	f := setup(t, nil)
	s := f.start(t)
	if _, err := s.Submit(context.Background(), quiz.ReasonManual); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.svc.Start(context.Background(), f.quizID, "stu-1", "Ana"); !errors.Is(err, ErrAlreadyAttempted) {
		t.Fatalf("expected ErrAlreadyAttempted, got %v", err)
	}
}

func TestStartResumesLiveSession(t *testing.T) {
	f := setup(t, nil)
	a := f.start(t)
	b := f.start(t)
	if a.ID != b.ID {
		t.Fatalf("expected the live session back")
	}
}

func TestStartGuards(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	if _, err := f.svc.Start(ctx, f.quizID, "outsider", "Bo"); !errors.Is(err, ErrNotEnrolled) {
		t.Fatalf("expected ErrNotEnrolled, got %v", err)
	}
	if _, err := f.svc.Start(ctx, "missing", "stu-1", "Ana"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected store.ErrNotFound, got %v", err)
	}

	draft, _ := f.backend.PutQuiz(ctx, quiz.Quiz{Title: "draft", Questions: []quiz.Question{{Text: "q", Type: quiz.Paragraph}}})
	if _, err := f.svc.Start(ctx, draft.ID, "stu-1", "Ana"); !errors.Is(err, ErrQuizNotAssigned) {
		t.Fatalf("expected ErrQuizNotAssigned, got %v", err)
	}

	due := f.clock.Now().Add(-time.Hour)
	closed, _ := f.backend.PutQuiz(ctx, quiz.Quiz{
		Title: "closed", DueAt: &due, CloseAfterDue: true,
		Questions: []quiz.Question{{Text: "q", Type: quiz.ShortAnswer, AnswerKey: "x"}},
	})
	_, _ = f.backend.AssignQuiz(ctx, closed.ID, "DCIT26")
	if _, err := f.svc.Start(ctx, closed.ID, "stu-1", "Ana"); !errors.Is(err, ErrQuizClosed) {
		t.Fatalf("expected ErrQuizClosed, got %v", err)
	}
}

func TestAdvanceClamps(t *testing.T) {
	f := setup(t, nil)
	s := f.start(t)
	if i, _ := s.Advance(-1); i != 0 {
		t.Fatalf("advance back from 0 = %d", i)
	}
	for n := 0; n < 10; n++ {
		_, _ = s.Advance(1)
	}
	if i, _ := s.Advance(1); i != 3 {
		t.Fatalf("advance past end = %d, want 3", i)
	}
	if i, _ := s.Advance(-1); i != 2 {
		t.Fatalf("advance back = %d, want 2", i)
	}
}

func TestRecordAnswerOutOfRangeIsNoop(t *testing.T) {
	f := setup(t, nil)
	s := f.start(t)
	if err := s.RecordAnswer(99, "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.RecordAnswer(-1, "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = s.RecordAnswer(0, "first")
	_ = s.RecordAnswer(0, "second")
	v := s.View()
	if len(v.Answers) != 1 || v.Answers[0] != "second" {
		t.Fatalf("answers = %+v", v.Answers)
	}
}

func TestUntimedQuizNeverTimesOut(t *testing.T) {
	f := setup(t, nil)
	s := f.start(t)
	ctx := context.Background()
	for i := 0; i < 5*3600; i++ {
		if err := s.Tick(ctx); err != nil {
			t.Fatalf("tick: %v", err)
		}
	}
	v := s.View()
	if v.State != StateActive {
		t.Fatalf("untimed session left active state: %s", v.State)
	}
	if v.Remaining != UntimedSentinel || v.Elapsed != 5*3600 {
		t.Fatalf("remaining=%d elapsed=%d", v.Remaining, v.Elapsed)
	}
	if f.backend.Writes() != 0 {
		t.Fatalf("untimed session wrote a result")
	}
}

func TestTimedQuizSubmitsAtZero(t *testing.T) {
	f := setup(t, intp(1))
	s := f.start(t)
	ctx := context.Background()
	for i := 0; i < 59; i++ {
		_ = s.Tick(ctx)
	}
	if s.State() != StateActive {
		t.Fatalf("submitted early")
	}
	if err := s.Tick(ctx); err != nil {
		t.Fatalf("final tick: %v", err)
	}
	v := s.View()
	if v.State != StateSubmitted || v.Result == nil {
		t.Fatalf("state = %s", v.State)
	}
	if v.Result.Reason != quiz.ReasonTimeout || !v.Result.AutoSubmitted || v.Result.TimeTaken != 60 {
		t.Fatalf("result = %+v", v.Result)
	}
	_ = s.Tick(ctx)
	if f.backend.Writes() != 1 {
		t.Fatalf("writes = %d", f.backend.Writes())
	}
	if f.svc.Registry().Len() != 0 {
		t.Fatalf("submitted session still registered")
	}
}

func sig(kind SignalKind) Signal { return Signal{Kind: kind} }

func TestSignalsWithinDebounceCountOnce(t *testing.T) {
	f := setup(t, nil)
	s := f.start(t)
	ctx := context.Background()
	counted := 0
	for i := 0; i < 3; i++ {
		v, err := s.Observe(ctx, sig(SignalVisibilityHidden))
		if err != nil {
			t.Fatalf("observe: %v", err)
		}
		if v.Counted {
			counted++
		}
		f.clock.Advance(100 * time.Millisecond)
	}
	if counted != 1 || s.View().Violations != 1 {
		t.Fatalf("counted=%d violations=%d", counted, s.View().Violations)
	}
}

func TestThirdViolationForcesSubmit(t *testing.T) {
	f := setup(t, nil)
	s := f.start(t)
	ctx := context.Background()
	kinds := []SignalKind{SignalVisibilityHidden, SignalBlur, SignalVisibilityHidden}
	var last Verdict
	prev := 0
	for i, k := range kinds {
		v, err := s.Observe(ctx, sig(k))
		if err != nil {
			t.Fatalf("observe %d: %v", i, err)
		}
		if v.Count < prev {
			t.Fatalf("violations went down: %d -> %d", prev, v.Count)
		}
		prev = v.Count
		if i < 2 && (v.Terminate || v.Warning == "" || v.WarningTTL != 3*time.Second) {
			t.Fatalf("verdict %d = %+v", i, v)
		}
		last = v
		f.clock.Advance(time.Second)
	}
	if !last.Terminate || last.Count != 3 {
		t.Fatalf("last verdict = %+v", last)
	}
	r, err := f.backend.FindResult(ctx, f.quizID, "stu-1")
	if err != nil {
		t.Fatalf("result not stored: %v", err)
	}
	if r.Reason != quiz.ReasonViolation || !r.AutoSubmitted || r.Violations != 3 {
		t.Fatalf("result = %+v", r)
	}

	// later signals cannot touch the finalized result
	if _, err := f.svc.Observe(ctx, s.ID, "stu-1", sig(SignalVisibilityHidden)); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("signal after submit: %v", err)
	}
	if _, err := s.Observe(ctx, sig(SignalVisibilityHidden)); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("direct signal after submit: %v", err)
	}
	if f.backend.Writes() != 1 {
		t.Fatalf("writes = %d", f.backend.Writes())
	}
}

func TestNonQualifyingSignalsIgnored(t *testing.T) {
	f := setup(t, nil)
	s := f.start(t)
	ctx := context.Background()
	ignored := []Signal{
		{Kind: SignalBlur, Refocused: true},
		{Kind: SignalBlur, Hidden: true},
		{Kind: SignalPointerLeave, ClientY: 40, HasFocus: true},
		{Kind: SignalPointerLeave, ClientY: 0, HasFocus: false},
		{Kind: SignalKeyCombo, Key: "Tab"},
		{Kind: SignalKeyCombo, Key: "c", Meta: true},
	}
	for _, g := range ignored {
		v, _ := s.Observe(ctx, g)
		if v.Counted {
			t.Fatalf("signal %+v counted", g)
		}
		f.clock.Advance(time.Second)
	}
	v, _ := s.Observe(ctx, Signal{Kind: SignalKeyCombo, Key: "Tab", Alt: true})
	if !v.Counted || v.WarningTTL != 2*time.Second {
		t.Fatalf("alt+tab verdict = %+v", v)
	}
}

func TestPersistFailureKeepsFinalizedForRetry(t *testing.T) {
	f := setup(t, nil)
	s := f.start(t)
	ctx := context.Background()
	_ = s.RecordAnswer(0, "A")

	f.backend.failing = true
	first, err := s.Submit(ctx, quiz.ReasonManual)
	if err == nil {
		t.Fatalf("expected persist error")
	}
	if s.State() != StateFinalized {
		t.Fatalf("state = %s, want finalized", s.State())
	}
	if err := s.RecordAnswer(1, "B"); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("answer after finalize: %v", err)
	}

	f.backend.failing = false
	f.clock.Advance(time.Minute)
	again, err := s.Submit(ctx, quiz.ReasonManual)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !again.SubmittedAt.Equal(first.SubmittedAt) || again.Score.Correct != 1 {
		t.Fatalf("retry changed the result: %+v vs %+v", again, first)
	}
	if f.backend.Writes() != 1 {
		t.Fatalf("writes = %d", f.backend.Writes())
	}
}

func TestDiscardWritesNothing(t *testing.T) {
	f := setup(t, nil)
	s := f.start(t)
	if err := f.svc.Discard(s.ID, "stu-1"); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, err := s.Observe(context.Background(), sig(SignalVisibilityHidden)); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("signal after discard: %v", err)
	}
	if f.backend.Writes() != 0 || f.svc.Registry().Len() != 0 {
		t.Fatalf("discard left state behind")
	}
	// a discarded attempt can be started again
	if s2 := f.start(t); s2.ID == s.ID {
		t.Fatalf("expected a fresh session")
	}
}

func TestSessionOwnership(t *testing.T) {
	f := setup(t, nil)
	s := f.start(t)
	if _, err := f.svc.Session(s.ID, "someone-else"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := f.svc.Submit(context.Background(), s.ID, "someone-else", quiz.ReasonManual); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRegistryTickAllAndRun(t *testing.T) {
	f := setup(t, intp(1))
	s := f.start(t)
	reg := f.svc.Registry()

	ctx := context.Background()
	for i := 0; i < 30; i++ {
		reg.TickAll(ctx)
	}
	reg.pending.Wait()
	if v := s.View(); v.State != StateActive || v.Remaining != 30 {
		t.Fatalf("after 30 ticks: state=%s remaining=%d", v.State, v.Remaining)
	}

	reg.tick = time.Millisecond
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		reg.Run(runCtx)
		close(done)
	}()
	deadline := time.Now().Add(5 * time.Second)
	for s.State() != StateSubmitted && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if s.State() != StateSubmitted {
		t.Fatalf("state = %s, want submitted by timeout", s.State())
	}
	if f.backend.Writes() != 1 {
		t.Fatalf("writes = %d", f.backend.Writes())
	}
}

func TestTimeoutSubmitFailureLeavesSessionFinalized(t *testing.T) {
	f := setup(t, intp(1))
	s := f.start(t)
	reg := f.svc.Registry()
	f.backend.mu.Lock()
	f.backend.failing = true
	f.backend.mu.Unlock()

	ctx := context.Background()
	for i := 0; i < 60; i++ {
		reg.TickAll(ctx)
	}
	reg.pending.Wait()
	if s.State() != StateFinalized {
		t.Fatalf("state = %s, want finalized", s.State())
	}
	if err := s.RecordAnswer(0, "late"); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("answer after timeout: %v", err)
	}

	f.backend.mu.Lock()
	f.backend.failing = false
	f.backend.mu.Unlock()
	rep := f.svc.Sweep(ctx, 2*time.Hour)
	if rep.Retried != 1 || s.State() != StateSubmitted {
		t.Fatalf("report = %+v state=%s", rep, s.State())
	}
	if res := s.View().Result; res == nil || res.Reason != quiz.ReasonTimeout {
		t.Fatalf("result = %+v", res)
	}
}

func TestSweep(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	s := f.start(t)

	f.clock.Advance(3 * time.Hour)
	rep := f.svc.Sweep(ctx, 2*time.Hour)
	if rep.Discarded != 1 || f.svc.Registry().Len() != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if s.State() != StateDiscarded {
		t.Fatalf("state = %s", s.State())
	}

	// finalized sessions are retried
	s2 := f.start(t)
	f.backend.failing = true
	_, _ = s2.Submit(ctx, quiz.ReasonManual)
	f.backend.failing = false
	rep = f.svc.Sweep(ctx, 2*time.Hour)
	if rep.Retried != 1 || s2.State() != StateSubmitted {
		t.Fatalf("report = %+v state=%s", rep, s2.State())
	}
}

func TestSweepKeepsRunningTimedSession(t *testing.T) {
	f := setup(t, intp(180))
	ctx := context.Background()
	s := f.start(t)

	f.clock.Advance(2*time.Hour + time.Second)
	for i := 0; i < 10; i++ {
		_ = s.Tick(ctx)
	}
	rep := f.svc.Sweep(ctx, 2*time.Hour)
	if rep.Discarded != 0 || f.svc.Registry().Len() != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if v := s.View(); v.State != StateActive || v.Remaining != 180*60-10 {
		t.Fatalf("state=%s remaining=%d", v.State, v.Remaining)
	}
}

func TestMonitorIgnoresWhenNotArmed(t *testing.T) {
	m := NewMonitor(3, DefaultMinInterval)
	if v := m.Observe(Signal{Kind: SignalVisibilityHidden, At: time.Now()}); v.Counted {
		t.Fatalf("counted while idle")
	}
	m.Arm()
	if m.State() != MonitorArmed {
		t.Fatalf("state = %s", m.State())
	}
	now := time.Now()
	m.Observe(Signal{Kind: SignalVisibilityHidden, At: now})
	if m.State() != MonitorWarning {
		t.Fatalf("state = %s", m.State())
	}
	m.Disarm()
	if v := m.Observe(Signal{Kind: SignalVisibilityHidden, At: now.Add(time.Second)}); v.Counted || m.Count() != 1 {
		t.Fatalf("counted after disarm: %+v", v)
	}
}
