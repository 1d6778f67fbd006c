package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/classquiz/internal/gradebook"
	"github.com/mind-engage/classquiz/internal/quiz"
)

type resultKey struct{ quizID, studentID string }

type memoryStore struct {
	mu          sync.RWMutex
	classes     map[string]quiz.Class
	enrollments map[string]map[string]time.Time // student -> class code -> joined
	quizzes     map[string]quiz.Quiz
	results     map[resultKey]quiz.Result
	lineItems   map[string]gradebook.GradebookLineItem
	now         func() time.Time
}

// NewInMemoryStore is used by tests and by tools that do not need durability.
func NewInMemoryStore() *memoryStore {
	return &memoryStore{
		classes:     map[string]quiz.Class{},
		enrollments: map[string]map[string]time.Time{},
		quizzes:     map[string]quiz.Quiz{},
		results:     map[resultKey]quiz.Result{},
		lineItems:   map[string]gradebook.GradebookLineItem{},
		now:         time.Now,
	}
}

// ---- results ----

func (m *memoryStore) FindResult(_ context.Context, quizID, studentID string) (quiz.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[resultKey{quizID, studentID}]
	if !ok {
		return quiz.Result{}, fmt.Errorf("result %s/%s: %w", quizID, studentID, ErrNotFound)
	}
	return cloneResult(r), nil
}

func (m *memoryStore) UpsertResult(_ context.Context, r quiz.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ClassCode = quiz.NormalizeCode(r.ClassCode)
	m.results[resultKey{r.QuizID, r.StudentID}] = cloneResult(r)
	return nil
}

func (m *memoryStore) ListResults(_ context.Context, f ResultFilter) ([]quiz.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []quiz.Result{}
	for _, r := range m.results {
		if f.QuizID != "" && r.QuizID != f.QuizID {
			continue
		}
		if f.StudentID != "" && r.StudentID != f.StudentID {
			continue
		}
		if f.ClassCode != "" && r.ClassCode != quiz.NormalizeCode(f.ClassCode) {
			continue
		}
		out = append(out, cloneResult(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

func (m *memoryStore) ReleaseQuiz(_ context.Context, quizID string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, r := range m.results {
		if k.quizID != quizID || r.Released {
			continue
		}
		t := at
		r.Released, r.ReleasedAt = true, &t
		m.results[k] = r
		n++
	}
	return n, nil
}

func (m *memoryStore) ReleaseResult(_ context.Context, quizID, studentID string, at time.Time) (quiz.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := resultKey{quizID, studentID}
	r, ok := m.results[k]
	if !ok {
		return quiz.Result{}, fmt.Errorf("result %s/%s: %w", quizID, studentID, ErrNotFound)
	}
	if !r.Released {
		t := at
		r.Released, r.ReleasedAt = true, &t
		m.results[k] = r
	}
	return cloneResult(r), nil
}

// ---- classes ----

func (m *memoryStore) CreateClass(_ context.Context, c quiz.Class) (quiz.Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.Code == "" {
		code, err := uniqueClassCode(func(code string) (bool, error) {
			_, ok := m.classes[code]
			return ok, nil
		})
		if err != nil {
			return quiz.Class{}, err
		}
		c.Code = code
	}
	c.Code = quiz.NormalizeCode(c.Code)
	if _, ok := m.classes[c.Code]; ok {
		return quiz.Class{}, fmt.Errorf("class %s: %w", c.Code, ErrConflict)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.now()
	}
	m.classes[c.Code] = c
	return c, nil
}

func (m *memoryStore) GetClassByCode(_ context.Context, code string) (quiz.Class, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.classes[quiz.NormalizeCode(code)]
	if !ok {
		return quiz.Class{}, fmt.Errorf("class %s: %w", code, ErrNotFound)
	}
	return c, nil
}

func (m *memoryStore) ListClasses(_ context.Context, createdBy string) ([]quiz.Class, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []quiz.Class{}
	for _, c := range m.classes {
		if createdBy != "" && c.CreatedBy != createdBy {
			continue
		}
		out = append(out, c)
	}
	sortClasses(out)
	return out, nil
}

func (m *memoryStore) CountClasses(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.classes), nil
}

func (m *memoryStore) DeleteClass(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	code = quiz.NormalizeCode(code)
	if _, ok := m.classes[code]; !ok {
		return fmt.Errorf("class %s: %w", code, ErrNotFound)
	}
	delete(m.classes, code)
	for _, joined := range m.enrollments {
		delete(joined, code)
	}
	for id, q := range m.quizzes {
		if q.ClassCode == code {
			delete(m.quizzes, id)
		}
	}
	return nil
}

// ---- enrollments ----

func (m *memoryStore) Enroll(_ context.Context, studentID, code string) (quiz.Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.classes[quiz.NormalizeCode(code)]
	if !ok {
		return quiz.Class{}, fmt.Errorf("class %s: %w", code, ErrNotFound)
	}
	joined := m.enrollments[studentID]
	if joined == nil {
		joined = map[string]time.Time{}
		m.enrollments[studentID] = joined
	}
	if _, ok := joined[c.Code]; ok {
		return c, fmt.Errorf("enrollment %s: %w", c.Code, ErrConflict)
	}
	joined[c.Code] = m.now()
	return c, nil
}

func (m *memoryStore) Unenroll(_ context.Context, studentID, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	code = quiz.NormalizeCode(code)
	if _, ok := m.enrollments[studentID][code]; !ok {
		return fmt.Errorf("enrollment %s: %w", code, ErrNotFound)
	}
	delete(m.enrollments[studentID], code)
	return nil
}

func (m *memoryStore) EnrolledClasses(_ context.Context, studentID string) ([]quiz.Class, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []quiz.Class{}
	for code := range m.enrollments[studentID] {
		if c, ok := m.classes[code]; ok {
			out = append(out, c)
		}
	}
	sortClasses(out)
	return out, nil
}

func (m *memoryStore) IsEnrolled(_ context.Context, studentID, code string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.enrollments[studentID][quiz.NormalizeCode(code)]
	return ok, nil
}

// ---- quizzes ----

func (m *memoryStore) PutQuiz(_ context.Context, q quiz.Quiz) (quiz.Quiz, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if prev, ok := m.quizzes[q.ID]; ok {
		q.CreatedAt = prev.CreatedAt
		if q.ClassCode == "" {
			q.ClassCode, q.Status = prev.ClassCode, prev.Status
		}
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = m.now()
	}
	if q.Status == "" {
		q.Status = quiz.StatusDraft
	}
	q.ClassCode = quiz.NormalizeCode(q.ClassCode)
	if q.ClassCode != "" {
		if _, ok := m.classes[q.ClassCode]; !ok {
			return quiz.Quiz{}, fmt.Errorf("class %s: %w", q.ClassCode, ErrNotFound)
		}
	}
	m.quizzes[q.ID] = cloneQuiz(q)
	return q, nil
}

func (m *memoryStore) GetQuiz(_ context.Context, id string) (quiz.Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quizzes[id]
	if !ok {
		return quiz.Quiz{}, fmt.Errorf("quiz %s: %w", id, ErrNotFound)
	}
	return cloneQuiz(q), nil
}

func (m *memoryStore) ListQuizzes(_ context.Context, f QuizFilter) ([]quiz.Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []quiz.Quiz{}
	for _, q := range m.quizzes {
		if f.ClassCode != "" && q.ClassCode != quiz.NormalizeCode(f.ClassCode) {
			continue
		}
		if f.Status != "" && q.Status != f.Status {
			continue
		}
		if f.CreatedBy != "" && q.CreatedBy != f.CreatedBy {
			continue
		}
		out = append(out, cloneQuiz(q))
	}
	sortQuizzes(out)
	return out, nil
}

func (m *memoryStore) ListAssignedQuizzes(ctx context.Context, classCode string) ([]quiz.Quiz, error) {
	return m.ListQuizzes(ctx, QuizFilter{ClassCode: classCode, Status: quiz.StatusAssigned})
}

func (m *memoryStore) AssignQuiz(_ context.Context, quizID, classCode string) (quiz.Quiz, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quizzes[quizID]
	if !ok {
		return quiz.Quiz{}, fmt.Errorf("quiz %s: %w", quizID, ErrNotFound)
	}
	code := quiz.NormalizeCode(classCode)
	if _, ok := m.classes[code]; !ok {
		return quiz.Quiz{}, fmt.Errorf("class %s: %w", classCode, ErrNotFound)
	}
	q.ClassCode, q.Status = code, quiz.StatusAssigned
	m.quizzes[quizID] = q
	return cloneQuiz(q), nil
}

func (m *memoryStore) UnassignQuiz(_ context.Context, quizID string) (quiz.Quiz, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quizzes[quizID]
	if !ok {
		return quiz.Quiz{}, fmt.Errorf("quiz %s: %w", quizID, ErrNotFound)
	}
	q.ClassCode, q.Status = "", quiz.StatusDraft
	m.quizzes[quizID] = q
	return cloneQuiz(q), nil
}

func (m *memoryStore) DeleteQuiz(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.quizzes[id]; !ok {
		return fmt.Errorf("quiz %s: %w", id, ErrNotFound)
	}
	delete(m.quizzes, id)
	return nil
}

// ---- gradebook line items ----

func (m *memoryStore) FindLineItem(_ context.Context, quizID string) (gradebook.GradebookLineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	li, ok := m.lineItems[quizID]
	if !ok {
		return gradebook.GradebookLineItem{}, fmt.Errorf("line item %s: %w", quizID, ErrNotFound)
	}
	return li, nil
}

func (m *memoryStore) UpsertLineItem(_ context.Context, li gradebook.GradebookLineItem) (gradebook.GradebookLineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lineItems[li.QuizID] = li
	return li, nil
}

// ---- helpers ----

func cloneResult(r quiz.Result) quiz.Result {
	ans := make(map[int]string, len(r.Answers))
	for k, v := range r.Answers {
		ans[k] = v
	}
	r.Answers = ans
	if r.Score != nil {
		s := *r.Score
		r.Score = &s
	}
	return r
}

func cloneQuiz(q quiz.Quiz) quiz.Quiz {
	qs := make([]quiz.Question, len(q.Questions))
	copy(qs, q.Questions)
	q.Questions = qs
	return q
}

func sortClasses(cs []quiz.Class) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].Code < cs[j].Code })
}

func sortQuizzes(qs []quiz.Quiz) {
	sort.Slice(qs, func(i, j int) bool {
		if qs[i].CreatedAt.Equal(qs[j].CreatedAt) {
			return qs[i].ID < qs[j].ID
		}
		return qs[i].CreatedAt.After(qs[j].CreatedAt)
	})
}
