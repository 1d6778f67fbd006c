package gradebook

import (
	"context"
	"time"
)

// GradebookLineItem maps a quiz to the line item created for it on the
// external gradebook.
type GradebookLineItem struct {
	QuizID      string
	Label       string
	ScoreMax    float64
	LineItemURL string // absolute URL
}

// Store persists line item mappings. Implemented by internal/store.
type Store interface {
	FindLineItem(ctx context.Context, quizID string) (GradebookLineItem, error)
	UpsertLineItem(ctx context.Context, li GradebookLineItem) (GradebookLineItem, error)
}

type LineItem struct {
	ID, Label, ResourceID string
	ScoreMaximum          float64
}

type CreateLineItemReq struct {
	Label        string
	ScoreMaximum float64
	ResourceID   string
	Tag          string
}

type Score struct {
	UserID, ActivityProgress, GradingProgress string
	ScoreGiven, ScoreMaximum                  float64
	Comment                                   string
	Timestamp                                 time.Time
}

type AGSClient interface {
	ListLineItems(ctx context.Context, lineItemsURL string, q map[string]string) ([]LineItem, error)
	CreateLineItem(ctx context.Context, lineItemsURL string, req CreateLineItemReq) (LineItem, error)
	PostScore(ctx context.Context, lineItemURL string, s Score) error
}
