package quiz

import (
	"math"
	"time"
)

// StudentStats summarises a student's progress over released results.
type StudentStats struct {
	TotalQuizzes   int `json:"total_quizzes"`
	Completed      int `json:"completed"`
	Graded         int `json:"graded"`
	AveragePercent int `json:"average_percentage"`
	TotalPoints    int `json:"total_points"`
}

// ComputeStudentStats counts every submitted result as completed; scores
// only count once released.
func ComputeStudentStats(assigned int, rs []Result) StudentStats {
	st := StudentStats{TotalQuizzes: assigned, Completed: len(rs)}
	sum := 0
	for _, r := range rs {
		if !r.Released || r.Score == nil {
			continue
		}
		st.Graded++
		sum += r.Score.Percentage
		st.TotalPoints += r.Score.Points
	}
	if st.Graded > 0 {
		st.AveragePercent = int(math.Round(float64(sum) / float64(st.Graded)))
	}
	return st
}

// ResultsSummary is the instructor's grading overview of one quiz.
type ResultsSummary struct {
	Submissions    int  `json:"total_submissions"`
	Released       int  `json:"released"`
	AllReleased    bool `json:"scores_released"`
	AveragePercent int  `json:"average_percentage"`
}

func Summarize(rs []Result) ResultsSummary {
	s := ResultsSummary{Submissions: len(rs)}
	sum := 0
	for _, r := range rs {
		if !r.Released {
			continue
		}
		s.Released++
		if r.Score != nil {
			sum += r.Score.Percentage
		}
	}
	s.AllReleased = s.Submissions > 0 && s.Released == s.Submissions
	if s.Released > 0 {
		s.AveragePercent = int(math.Round(float64(sum) / float64(s.Released)))
	}
	return s
}

type BoardStatus string

const (
	BoardCompleted BoardStatus = "completed"
	BoardMissing   BoardStatus = "missing"
	BoardUpcoming  BoardStatus = "upcoming"
)

// BoardStatusOf places an assigned quiz on a student's board.
func BoardStatusOf(q Quiz, submitted bool, now time.Time) BoardStatus {
	switch {
	case submitted:
		return BoardCompleted
	case q.DueAt != nil && now.After(*q.DueAt):
		return BoardMissing
	default:
		return BoardUpcoming
	}
}
