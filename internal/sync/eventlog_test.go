package syncx

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/mind-engage/classquiz/internal/db"
)

func TestRecordAndSince(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	repo := NewEventRepo(conn, "")
	if err := repo.Record(ctx, EventResultSubmitted, "q1|u1", map[string]any{"percentage": 75}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := repo.Record(ctx, EventScoresReleased, "q1", map[string]any{"released": 3}); err != nil {
		t.Fatalf("record: %v", err)
	}

	all, err := repo.Since(ctx, 0, 10)
	if err != nil {
		t.Fatalf("since: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d events, want 2", len(all))
	}
	if all[0].Type != EventResultSubmitted || all[0].SiteID != "local" || all[0].Key != "q1|u1" {
		t.Fatalf("first event = %+v", all[0])
	}
	var payload map[string]int
	if err := json.Unmarshal([]byte(all[0].DataJSON), &payload); err != nil || payload["percentage"] != 75 {
		t.Fatalf("payload = %q (%v)", all[0].DataJSON, err)
	}

	rest, _ := repo.Since(ctx, all[0].Seq, 10)
	if len(rest) != 1 || rest[0].Type != EventScoresReleased {
		t.Fatalf("since first = %+v", rest)
	}
}
