package http

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/classquiz/internal/attempt"
	"github.com/mind-engage/classquiz/internal/quiz"
	"github.com/mind-engage/classquiz/internal/store"
	syncx "github.com/mind-engage/classquiz/internal/sync"
)

// GradebookPusher receives released results; *gradebook.Syncer implements it.
type GradebookPusher interface {
	SyncReleased(ctx context.Context, qz quiz.Quiz, rs []quiz.Result) (int, error)
}

// GET /quizzes/{quizID}/results
func ListQuizResultsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := quizFrom(r)
		rs, err := st.ListResults(r.Context(), store.ResultFilter{QuizID: q.ID})
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": rs})
	}
}

// GET /quizzes/{quizID}/results/summary
func QuizResultsSummaryHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := quizFrom(r)
		rs, err := st.ListResults(r.Context(), store.ResultFilter{QuizID: q.ID})
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, quiz.Summarize(rs))
	}
}

func recordRelease(ctx context.Context, events attempt.EventRecorder, quizID, studentID string, n int) {
	if events == nil {
		return
	}
	payload := map[string]any{"quiz_id": quizID, "student_id": studentID, "released": n}
	if err := events.Record(ctx, syncx.EventScoresReleased, quizID+"|"+studentID, payload); err != nil {
		log.Printf("[results] event log: %v", err)
	}
}

func pushGradebook(ctx context.Context, gb GradebookPusher, q quiz.Quiz, rs []quiz.Result) int {
	if gb == nil || len(rs) == 0 {
		return 0
	}
	n, err := gb.SyncReleased(ctx, q, rs)
	if err != nil {
		log.Printf("[gradebook] quiz %s: posted %d of %d: %v", q.ID, n, len(rs), err)
	}
	return n
}

// POST /quizzes/{quizID}/release releases every result of the quiz. Events
// and gradebook pushes happen only when something new was released.
func ReleaseQuizHandler(st store.Store, events attempt.EventRecorder, gb GradebookPusher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := quizFrom(r)
		n, err := st.ReleaseQuiz(r.Context(), q.ID, time.Now().UTC())
		if err != nil {
			writeErr(w, err)
			return
		}
		rs, err := st.ListResults(r.Context(), store.ResultFilter{QuizID: q.ID})
		if err != nil {
			writeErr(w, err)
			return
		}
		synced := 0
		if n > 0 {
			recordRelease(r.Context(), events, q.ID, "", n)
			synced = pushGradebook(r.Context(), gb, q, rs)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"released": n,
			"synced":   synced,
			"summary":  quiz.Summarize(rs),
		})
	}
}

// POST /quizzes/{quizID}/results/{studentID}/release. Releasing an already
// released result returns it without a new event or gradebook push.
func ReleaseResultHandler(st store.Store, events attempt.EventRecorder, gb GradebookPusher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := quizFrom(r)
		studentID := chi.URLParam(r, "studentID")
		prev, err := st.FindResult(r.Context(), q.ID, studentID)
		if err != nil {
			writeErr(w, err)
			return
		}
		if prev.Released {
			writeJSON(w, http.StatusOK, prev)
			return
		}
		res, err := st.ReleaseResult(r.Context(), q.ID, studentID, time.Now().UTC())
		if err != nil {
			writeErr(w, err)
			return
		}
		recordRelease(r.Context(), events, q.ID, studentID, 1)
		pushGradebook(r.Context(), gb, q, []quiz.Result{res})
		writeJSON(w, http.StatusOK, res)
	}
}

// GET /quizzes/{quizID}/result is the caller's own result, score hidden
// until released.
func MyQuizResultHandler(rs store.ResultStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := rs.FindResult(r.Context(), chi.URLParam(r, "quizID"), viewerOf(r).ID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res.Masked())
	}
}

// GET /me/results?class_code=
func MyResultsHandler(rs store.ResultStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := rs.ListResults(r.Context(), store.ResultFilter{
			StudentID: viewerOf(r).ID,
			ClassCode: r.URL.Query().Get("class_code"),
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		for i := range list {
			list[i] = list[i].Masked()
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": list})
	}
}

// assignedFor returns the assigned quizzes of the student's classes,
// narrowed to classCode when set.
func assignedFor(ctx context.Context, cat store.Catalog, studentID, classCode string) ([]quiz.Quiz, error) {
	classes, err := cat.EnrolledClasses(ctx, studentID)
	if err != nil {
		return nil, err
	}
	want := quiz.NormalizeCode(classCode)
	out := []quiz.Quiz{}
	for _, c := range classes {
		if want != "" && c.Code != want {
			continue
		}
		qs, err := cat.ListAssignedQuizzes(ctx, c.Code)
		if err != nil {
			return nil, err
		}
		out = append(out, qs...)
	}
	return out, nil
}

// GET /me/stats
func MyStatsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := viewerOf(r)
		qs, err := assignedFor(r.Context(), st, v.ID, "")
		if err != nil {
			writeErr(w, err)
			return
		}
		rs, err := st.ListResults(r.Context(), store.ResultFilter{StudentID: v.ID})
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, quiz.ComputeStudentStats(len(qs), rs))
	}
}

type boardItem struct {
	Quiz   quiz.Quiz        `json:"quiz"`
	Status quiz.BoardStatus `json:"status"`
	Result *quiz.Result     `json:"result,omitempty"`
}

// GET /me/quizzes?class_code=&status=
func MyQuizzesHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := viewerOf(r)
		qs, err := assignedFor(r.Context(), st, v.ID, r.URL.Query().Get("class_code"))
		if err != nil {
			writeErr(w, err)
			return
		}
		want := quiz.BoardStatus(r.URL.Query().Get("status"))
		now := time.Now()
		items := make([]boardItem, 0, len(qs))
		for _, q := range qs {
			it := boardItem{Quiz: q.StudentView()}
			res, err := st.FindResult(r.Context(), q.ID, v.ID)
			switch {
			case err == nil:
				m := res.Masked()
				it.Result = &m
			case !errors.Is(err, store.ErrNotFound):
				writeErr(w, err)
				return
			}
			it.Status = quiz.BoardStatusOf(q, it.Result != nil, now)
			if want != "" && it.Status != want {
				continue
			}
			items = append(items, it)
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}
