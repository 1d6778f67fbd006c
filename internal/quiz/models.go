package quiz

import (
	"strings"
	"time"
)

type QuestionType string

const (
	ShortAnswer    QuestionType = "short-answer"
	MultipleChoice QuestionType = "multiple-choice"
	Paragraph      QuestionType = "paragraph"
	TrueFalse      QuestionType = "true-false"
)

type Status string

const (
	StatusDraft    Status = "draft"
	StatusAssigned Status = "assigned"
)

type Question struct {
	Text      string       `json:"text" validate:"required"`
	Type      QuestionType `json:"type" validate:"required,oneof=short-answer multiple-choice paragraph true-false"`
	Options   []string     `json:"options,omitempty" validate:"omitempty,dive,required"`
	AnswerKey string       `json:"answer_key,omitempty"`
}

// Scored reports whether the question contributes to the scored total.
func (q Question) Scored() bool {
	return q.Type != Paragraph && q.AnswerKey != ""
}

type Quiz struct {
	ID           string     `json:"id"`
	Title        string     `json:"title" validate:"required,max=200"`
	Instructions string     `json:"instructions,omitempty"`
	Questions    []Question `json:"questions" validate:"required,min=1,dive"`

	Points        *int       `json:"points,omitempty" validate:"omitempty,gte=0"`        // nil: unmarked
	TimerMinutes  *int       `json:"timer_minutes,omitempty" validate:"omitempty,gt=0"` // nil: untimed
	DueAt         *time.Time `json:"due_at,omitempty"`                                  // nil: no due date
	Topic         string     `json:"topic,omitempty"`
	CloseAfterDue bool       `json:"close_after_due,omitempty"`

	Status    Status    `json:"status" validate:"omitempty,oneof=draft assigned"`
	ClassCode string    `json:"class_code,omitempty"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

func (q Quiz) Timed() bool { return q.TimerMinutes != nil && *q.TimerMinutes > 0 }

func (q Quiz) MaxPoints() int {
	if q.Points == nil {
		return 0
	}
	return *q.Points
}

// Closed reports whether the quiz stopped accepting attempts at now.
func (q Quiz) Closed(now time.Time) bool {
	return q.CloseAfterDue && q.DueAt != nil && now.After(*q.DueAt)
}

// StudentView strips answer keys.
func (q Quiz) StudentView() Quiz {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	for i, qq := range q.Questions {
		qq.AnswerKey = ""
		out.Questions[i] = qq
	}
	return out
}

type Class struct {
	Code        string    `json:"code"`
	Name        string    `json:"name" validate:"required,max=120"`
	Schedule    string    `json:"schedule,omitempty"`
	Instructor  string    `json:"instructor,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// NormalizeCode makes join codes case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type Score struct {
	Correct    int `json:"correct"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
	Points     int `json:"points"`
	MaxPoints  int `json:"max_points"`
}

type SubmitReason string

const (
	ReasonManual    SubmitReason = "manual"
	ReasonTimeout   SubmitReason = "timeout"
	ReasonViolation SubmitReason = "violation"
)

type Result struct {
	QuizID      string         `json:"quiz_id"`
	StudentID   string         `json:"student_id"`
	StudentName string         `json:"student_name,omitempty"`
	QuizTitle   string         `json:"quiz_title,omitempty"`
	ClassCode   string         `json:"class_code,omitempty"`
	Answers     map[int]string `json:"answers"`

	// Score is nil in student views until the result is released.
	Score *Score `json:"score"`

	SubmittedAt   time.Time    `json:"submitted_at"`
	TimeTaken     int          `json:"time_taken"` // seconds
	Violations    int          `json:"violations"`
	AutoSubmitted bool         `json:"auto_submitted"`
	Reason        SubmitReason `json:"reason"`
	Released      bool         `json:"released"`
	ReleasedAt    *time.Time   `json:"released_at,omitempty"`
}

// Masked hides the score until an instructor releases it.
func (r Result) Masked() Result {
	if r.Released {
		return r
	}
	r.Score = nil
	return r
}
