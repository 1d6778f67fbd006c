package gradebook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mind-engage/classquiz/internal/quiz"
)

type Clock func() time.Time

// Syncer pushes released quiz results to an external gradebook.
type Syncer struct {
	Store        Store
	AGS          AGSClient
	LineItemsURL string
	Now          Clock
}

func New(store Store, ags AGSClient, lineItemsURL string, now Clock) *Syncer {
	if now == nil {
		now = time.Now
	}
	return &Syncer{Store: store, AGS: ags, LineItemsURL: lineItemsURL, Now: now}
}

// scoreMax is the quiz's points, or 100 for unmarked quizzes (graded by percentage).
func scoreMax(qz quiz.Quiz) float64 {
	if m := qz.MaxPoints(); m > 0 {
		return float64(m)
	}
	return 100
}

func (s *Syncer) EnsureLineItem(ctx context.Context, qz quiz.Quiz) (GradebookLineItem, error) {
	if li, err := s.Store.FindLineItem(ctx, qz.ID); err == nil && li.LineItemURL != "" {
		return li, nil
	}
	if s.LineItemsURL == "" {
		return GradebookLineItem{}, errors.New("missing lineitems_url")
	}

	items, err := s.AGS.ListLineItems(ctx, s.LineItemsURL, map[string]string{"resource_id": qz.ID})
	if err == nil {
		for _, it := range items {
			if it.ResourceID == qz.ID {
				return s.Store.UpsertLineItem(ctx, GradebookLineItem{
					QuizID: qz.ID, Label: it.Label, ScoreMax: it.ScoreMaximum, LineItemURL: it.ID,
				})
			}
		}
	}
	created, err := s.AGS.CreateLineItem(ctx, s.LineItemsURL, CreateLineItemReq{
		Label: qz.Title, ScoreMaximum: scoreMax(qz), ResourceID: qz.ID, Tag: qz.Topic,
	})
	if err != nil {
		return GradebookLineItem{}, fmt.Errorf("create line item: %w", err)
	}
	return s.Store.UpsertLineItem(ctx, GradebookLineItem{
		QuizID: qz.ID, Label: created.Label, ScoreMax: created.ScoreMaximum, LineItemURL: created.ID,
	})
}

// SyncResult posts one released result. Unreleased results are refused.
func (s *Syncer) SyncResult(ctx context.Context, qz quiz.Quiz, r quiz.Result) error {
	if !r.Released || r.Score == nil {
		return errors.New("result not released")
	}
	li, err := s.EnsureLineItem(ctx, qz)
	if err != nil {
		return err
	}
	given := float64(r.Score.Percentage)
	if qz.MaxPoints() > 0 {
		given = float64(r.Score.Points)
	}
	comment := ""
	if r.AutoSubmitted {
		comment = "auto-submitted: " + string(r.Reason)
	}
	return s.AGS.PostScore(ctx, li.LineItemURL, Score{
		UserID: r.StudentID, ScoreGiven: given, ScoreMaximum: scoreMax(qz),
		ActivityProgress: "Completed", GradingProgress: "FullyGraded",
		Comment: comment, Timestamp: s.Now(),
	})
}

// SyncReleased pushes every result in rs, continuing past failures.
// It returns how many were posted and the first error seen.
func (s *Syncer) SyncReleased(ctx context.Context, qz quiz.Quiz, rs []quiz.Result) (int, error) {
	var (
		posted   int
		firstErr error
	)
	for _, r := range rs {
		if !r.Released {
			continue
		}
		if err := s.SyncResult(ctx, qz, r); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("student %s: %w", r.StudentID, err)
			}
			continue
		}
		posted++
	}
	return posted, firstErr
}
