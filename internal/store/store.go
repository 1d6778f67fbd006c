package store

import (
	"context"
	"errors"
	"time"

	"github.com/mind-engage/classquiz/internal/quiz"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

type ResultFilter struct {
	QuizID    string
	StudentID string
	ClassCode string
}

type QuizFilter struct {
	ClassCode string
	Status    quiz.Status
	CreatedBy string
}

// ResultStore holds submitted attempts, one per (quiz, student).
// A read that follows a write observes it.
type ResultStore interface {
	FindResult(ctx context.Context, quizID, studentID string) (quiz.Result, error)
	// UpsertResult replaces any existing result for the same (QuizID, StudentID).
	UpsertResult(ctx context.Context, r quiz.Result) error
	ListResults(ctx context.Context, f ResultFilter) ([]quiz.Result, error)
	// ReleaseQuiz marks every result of the quiz released; already released
	// results keep their original ReleasedAt. Returns the number newly released.
	ReleaseQuiz(ctx context.Context, quizID string, at time.Time) (int, error)
	ReleaseResult(ctx context.Context, quizID, studentID string, at time.Time) (quiz.Result, error)
}

// Catalog holds classes, quizzes and enrollments.
type Catalog interface {
	// CreateClass assigns a fresh join code when c.Code is empty.
	CreateClass(ctx context.Context, c quiz.Class) (quiz.Class, error)
	GetClassByCode(ctx context.Context, code string) (quiz.Class, error)
	ListClasses(ctx context.Context, createdBy string) ([]quiz.Class, error)
	CountClasses(ctx context.Context) (int, error)
	// DeleteClass removes the class, its enrollments and its quizzes.
	DeleteClass(ctx context.Context, code string) error

	Enroll(ctx context.Context, studentID, code string) (quiz.Class, error)
	Unenroll(ctx context.Context, studentID, code string) error
	EnrolledClasses(ctx context.Context, studentID string) ([]quiz.Class, error)
	IsEnrolled(ctx context.Context, studentID, code string) (bool, error)

	// PutQuiz creates or replaces a quiz. An update with an empty class code
	// keeps the stored assignment; UnassignQuiz is the way back to draft.
	PutQuiz(ctx context.Context, q quiz.Quiz) (quiz.Quiz, error)
	GetQuiz(ctx context.Context, id string) (quiz.Quiz, error)
	ListQuizzes(ctx context.Context, f QuizFilter) ([]quiz.Quiz, error)
	// ListAssignedQuizzes returns assigned quizzes, all classes when classCode is empty.
	ListAssignedQuizzes(ctx context.Context, classCode string) ([]quiz.Quiz, error)
	AssignQuiz(ctx context.Context, quizID, classCode string) (quiz.Quiz, error)
	// UnassignQuiz clears the class and returns the quiz to draft.
	UnassignQuiz(ctx context.Context, quizID string) (quiz.Quiz, error)
	DeleteQuiz(ctx context.Context, id string) error
}

// Store is everything the gateway needs from persistence.
type Store interface {
	ResultStore
	Catalog
}

// DefaultClasses seeds an empty catalog in offline mode.
var DefaultClasses = []quiz.Class{
	{Code: "DCIT26", Name: "DCIT - 26", Schedule: "Mon-Wed-Fri 9:00 AM", Instructor: "Edan Belgica", Description: "Introduction to Programming", CreatedBy: "system"},
	{Code: "COSC101", Name: "COSC - 101", Schedule: "Tue-Thu 10:00 AM", Instructor: "Ruffino Dela Cruz", Description: "Data Structures and Algorithms", CreatedBy: "system"},
	{Code: "COSC75", Name: "COSC - 75", Schedule: "Mon-Wed 2:00 PM", Instructor: "Joshua Salceda", Description: "Database Management Systems", CreatedBy: "system"},
}

// SeedDefaults inserts DefaultClasses when the catalog has no classes.
func SeedDefaults(ctx context.Context, c Catalog) error {
	n, err := c.CountClasses(ctx)
	if err != nil || n > 0 {
		return err
	}
	for _, cls := range DefaultClasses {
		if _, err := c.CreateClass(ctx, cls); err != nil && !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return nil
}
