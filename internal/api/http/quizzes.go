package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/classquiz/internal/quiz"
	"github.com/mind-engage/classquiz/internal/rbac"
	"github.com/mind-engage/classquiz/internal/storage"
	"github.com/mind-engage/classquiz/internal/store"
)

// POST /quizzes
func CreateQuizHandler(cat store.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q quiz.Quiz
		if !decode(w, r, &q) {
			return
		}
		// new quizzes start as drafts; assignment goes through /assign
		q.ID, q.ClassCode, q.Status = "", "", quiz.StatusDraft
		q.CreatedBy = viewerOf(r).ID
		if err := q.Validate(); err != nil {
			writeErr(w, err)
			return
		}
		out, err := cat.PutQuiz(r.Context(), q)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

// PUT /quizzes/{quizID} replaces the quiz content. Status and class come
// from /assign and /unassign only.
func UpdateQuizHandler(cat store.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prev := quizFrom(r)
		var q quiz.Quiz
		if !decode(w, r, &q) {
			return
		}
		q.ID, q.CreatedBy = prev.ID, prev.CreatedBy
		q.ClassCode, q.Status = prev.ClassCode, prev.Status
		if err := q.Validate(); err != nil {
			writeErr(w, err)
			return
		}
		out, err := cat.PutQuiz(r.Context(), q)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// DELETE /quizzes/{quizID}
func DeleteQuizHandler(cat store.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cat.DeleteQuiz(r.Context(), quizFrom(r).ID); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /quizzes?class_code=&status=
func ListQuizzesHandler(cat store.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := viewerOf(r)
		f := store.QuizFilter{
			ClassCode: r.URL.Query().Get("class_code"),
			Status:    quiz.Status(r.URL.Query().Get("status")),
		}
		if !rbac.Allowed(r.Context(), permManageAnyQuiz) {
			f.CreatedBy = v.ID
		}
		out, err := cat.ListQuizzes(r.Context(), f)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": out})
	}
}

// GET /quizzes/{quizID}. Students only see assigned quizzes of their
// classes, without answer keys.
func GetQuizHandler(cat store.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := quizFrom(r)
		v := viewerOf(r)
		if !v.isStudent() {
			if !ownsQuiz(r) && !rbac.Allowed(r.Context(), permManageAnyQuiz) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			writeJSON(w, http.StatusOK, q)
			return
		}
		if q.Status != quiz.StatusAssigned {
			http.Error(w, "quiz not found", http.StatusNotFound)
			return
		}
		ok, err := cat.IsEnrolled(r.Context(), v.ID, q.ClassCode)
		if err != nil {
			writeErr(w, err)
			return
		}
		if !ok {
			http.Error(w, "quiz not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, q.StudentView())
	}
}

// POST /quizzes/{quizID}/assign  { "class_code": "DCIT26" }
// The caller must also own the target class.
func AssignQuizHandler(cat store.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ClassCode string `json:"class_code"`
		}
		if !decode(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.ClassCode) == "" {
			http.Error(w, "class_code required", http.StatusBadRequest)
			return
		}
		c, err := cat.GetClassByCode(r.Context(), req.ClassCode)
		if err != nil {
			writeErr(w, err)
			return
		}
		if !createdByCaller(r, c.CreatedBy) && !rbac.Allowed(r.Context(), permManageAnyClass) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		out, err := cat.AssignQuiz(r.Context(), quizFrom(r).ID, c.Code)
		if err != nil {
			writeErr(w, err)
			return
		}
		log.Printf("[quiz] %s assigned to %s", out.ID, out.ClassCode)
		writeJSON(w, http.StatusOK, out)
	}
}

// POST /quizzes/{quizID}/unassign returns the quiz to draft.
func UnassignQuizHandler(cat store.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := cat.UnassignQuiz(r.Context(), quizFrom(r).ID)
		if err != nil {
			writeErr(w, err)
			return
		}
		log.Printf("[quiz] %s back to draft", out.ID)
		writeJSON(w, http.StatusOK, out)
	}
}

type exportConditions struct {
	Points        *int       `json:"points"`
	TimerMinutes  *int       `json:"timer_minutes"`
	DueAt         *time.Time `json:"due_at"`
	Topic         string     `json:"topic,omitempty"`
	CloseAfterDue bool       `json:"close_after_due"`
}

type exportDoc struct {
	Title        string           `json:"title"`
	Instructions string           `json:"instructions"`
	Conditions   exportConditions `json:"conditions"`
	Questions    []quiz.Question  `json:"questions"`
	ExportedAt   time.Time        `json:"exported_at"`
}

func exportKey(quizID string) string { return "exports/" + quizID + ".json" }

// POST /quizzes/{quizID}/export writes the quiz document to the blob store.
func ExportQuizHandler(blobs storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := quizFrom(r)
		doc := exportDoc{
			Title:        q.Title,
			Instructions: q.Instructions,
			Conditions: exportConditions{
				Points: q.Points, TimerMinutes: q.TimerMinutes, DueAt: q.DueAt,
				Topic: q.Topic, CloseAfterDue: q.CloseAfterDue,
			},
			Questions:  q.Questions,
			ExportedAt: time.Now().UTC(),
		}
		b, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			writeErr(w, err)
			return
		}
		key, err := blobs.Put(exportKey(q.ID), bytes.NewReader(b))
		if err != nil {
			writeErr(w, err)
			return
		}
		url, err := blobs.URL(key)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"key": key, "url": url})
	}
}

// GET /exports/*
func ServeExportHandler(blobs storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc, err := blobs.Get("exports/" + chi.URLParam(r, "*"))
		if errors.Is(err, fs.ErrNotExist) {
			http.Error(w, "export not found", http.StatusNotFound)
			return
		}
		if err != nil {
			writeErr(w, err)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.Copy(w, rc)
	}
}
