package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/mind-engage/classquiz/internal/attempt"
	authmw "github.com/mind-engage/classquiz/internal/auth/middleware"
	"github.com/mind-engage/classquiz/internal/quiz"
	"github.com/mind-engage/classquiz/internal/rbac"
	"github.com/mind-engage/classquiz/internal/storage"
	"github.com/mind-engage/classquiz/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps domain errors onto status codes.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, attempt.ErrSessionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, quiz.ErrInvalid), errors.Is(err, storage.ErrBadKey):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, attempt.ErrAlreadyAttempted),
		errors.Is(err, attempt.ErrAlreadySubmitted),
		errors.Is(err, attempt.ErrNotStarted):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, attempt.ErrNotEnrolled),
		errors.Is(err, attempt.ErrQuizNotAssigned),
		errors.Is(err, attempt.ErrQuizClosed):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		log.Printf("[http] %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return false
	}
	return true
}

// viewer is the authenticated caller of a request.
type viewer struct {
	ID   string
	Role string
	Name string
}

func viewerOf(r *http.Request) viewer {
	ctx := r.Context()
	return viewer{
		ID:   authmw.SubjectFromContext(ctx),
		Role: rbac.RoleFromContext(ctx),
		Name: authmw.NameFromContext(ctx),
	}
}

func (v viewer) isStudent() bool { return v.Role == "student" }
