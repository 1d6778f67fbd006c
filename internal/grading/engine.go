package grading

import (
	"math"

	"github.com/mind-engage/classquiz/internal/quiz"
)

// Outcome is the result of grading a single question response.
type Outcome struct {
	Scored  bool // counts toward the scored total
	Correct bool
}

// Strategy grades a single question.
type Strategy interface {
	Grade(q quiz.Question, answer string, answered bool) Outcome
}

// Grader routes by question type to the correct Strategy.
type Grader struct {
	strategies map[quiz.QuestionType]Strategy
}

// NewDefaultGrader installs built-in strategies.
func NewDefaultGrader() *Grader {
	return &Grader{
		strategies: map[quiz.QuestionType]Strategy{
			quiz.ShortAnswer:    exactMatchStrategy{},
			quiz.MultipleChoice: exactMatchStrategy{},
			quiz.TrueFalse:      exactMatchStrategy{},
			quiz.Paragraph:      manualStrategy{},
		},
	}
}

func (g *Grader) grade(q quiz.Question, answer string, answered bool) Outcome {
	s, ok := g.strategies[q.Type]
	if !ok {
		return Outcome{}
	}
	return s.Grade(q, answer, answered)
}

// Score maps an answer set against the quiz's answer keys. It is pure:
// the same quiz and answers always give the same score.
func (g *Grader) Score(qz quiz.Quiz, answers map[int]string) quiz.Score {
	sc := quiz.Score{MaxPoints: qz.MaxPoints()}
	for i, q := range qz.Questions {
		ans, ok := answers[i]
		out := g.grade(q, ans, ok)
		if !out.Scored {
			continue
		}
		sc.Total++
		if out.Correct {
			sc.Correct++
		}
	}
	if sc.Total == 0 {
		return sc
	}
	sc.Percentage = int(math.Round(float64(sc.Correct) / float64(sc.Total) * 100))
	// round the final total, never per question
	perQuestion := float64(sc.MaxPoints) / float64(sc.Total)
	sc.Points = int(math.Round(float64(sc.Correct) * perQuestion))
	return sc
}

var defaultGrader = NewDefaultGrader()

// Score grades with the built-in strategies.
func Score(qz quiz.Quiz, answers map[int]string) quiz.Score {
	return defaultGrader.Score(qz, answers)
}

// --- Strategies ---

type exactMatchStrategy struct{}

func (exactMatchStrategy) Grade(q quiz.Question, answer string, answered bool) Outcome {
	if q.AnswerKey == "" {
		return Outcome{}
	}
	return Outcome{Scored: true, Correct: answered && answer == q.AnswerKey}
}

// manualStrategy covers free text: never part of the scored total.
type manualStrategy struct{}

func (manualStrategy) Grade(quiz.Question, string, bool) Outcome { return Outcome{} }
