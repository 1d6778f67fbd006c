package grading

import (
	"testing"

	"github.com/mind-engage/classquiz/internal/quiz"
)

func intp(v int) *int { return &v }

func keyed(keys ...string) []quiz.Question {
	out := make([]quiz.Question, len(keys))
	for i, k := range keys {
		out[i] = quiz.Question{Text: "q", Type: quiz.ShortAnswer, AnswerKey: k}
	}
	return out
}

func TestScoreFourQuestionExample(t *testing.T) {
	qz := quiz.Quiz{Questions: keyed("A", "B", "C", "D"), Points: intp(100)}
	got := Score(qz, map[int]string{0: "A", 1: "B", 2: "X", 3: "D"})
	want := quiz.Score{Correct: 3, Total: 4, Percentage: 75, Points: 75, MaxPoints: 100}
	if got != want {
		t.Fatalf("score = %+v, want %+v", got, want)
	}
}

func TestScoreZeroTotal(t *testing.T) {
	qz := quiz.Quiz{Questions: []quiz.Question{{Text: "essay", Type: quiz.Paragraph}}, Points: intp(10)}
	got := Score(qz, map[int]string{0: "long answer"})
	if got.Total != 0 || got.Percentage != 0 || got.Points != 0 {
		t.Fatalf("expected empty score, got %+v", got)
	}
	if got.MaxPoints != 10 {
		t.Fatalf("max points = %d, want 10", got.MaxPoints)
	}
}

func TestParagraphExcludedFromTotal(t *testing.T) {
	qs := append(keyed("yes"), quiz.Question{Text: "why", Type: quiz.Paragraph, AnswerKey: "because"})
	got := Score(quiz.Quiz{Questions: qs}, map[int]string{0: "yes", 1: "because"})
	if got.Total != 1 || got.Correct != 1 || got.Percentage != 100 {
		t.Fatalf("got %+v", got)
	}
}

func TestUnansweredIsWrong(t *testing.T) {
	got := Score(quiz.Quiz{Questions: keyed("A", "B")}, map[int]string{})
	if got.Correct != 0 || got.Total != 2 || got.Percentage != 0 {
		t.Fatalf("got %+v", got)
	}
}

func TestExactMatchIsCaseSensitive(t *testing.T) {
	got := Score(quiz.Quiz{Questions: keyed("Paris")}, map[int]string{0: "paris"})
	if got.Correct != 0 {
		t.Fatalf("expected no match, got %+v", got)
	}
}

func TestPointsRoundFinalTotal(t *testing.T) {
	// 10 points over 3 questions: 2 correct -> 6.67 -> 7 (per-question rounding would give 6)
	got := Score(quiz.Quiz{Questions: keyed("a", "b", "c"), Points: intp(10)}, map[int]string{0: "a", 1: "b"})
	if got.Points != 7 {
		t.Fatalf("points = %d, want 7", got.Points)
	}
	if got.Percentage != 67 {
		t.Fatalf("percentage = %d, want 67", got.Percentage)
	}
}

func TestPercentageBounds(t *testing.T) {
	qs := keyed("a", "b", "c", "d", "e", "f", "g")
	keys := []string{"a", "b", "c", "d", "e", "f", "g"}
	for n := 0; n <= len(qs); n++ {
		ans := map[int]string{}
		for i := 0; i < n; i++ {
			ans[i] = keys[i]
		}
		got := Score(quiz.Quiz{Questions: qs}, ans)
		if got.Percentage < 0 || got.Percentage > 100 {
			t.Fatalf("n=%d: percentage %d out of range", n, got.Percentage)
		}
		if (got.Percentage == 0) != (got.Correct == 0) {
			t.Fatalf("n=%d: percentage %d with correct %d", n, got.Percentage, got.Correct)
		}
	}
}

func TestUnmarkedQuizHasNoPoints(t *testing.T) {
	got := Score(quiz.Quiz{Questions: keyed("a")}, map[int]string{0: "a"})
	if got.Points != 0 || got.MaxPoints != 0 || got.Percentage != 100 {
		t.Fatalf("got %+v", got)
	}
}
