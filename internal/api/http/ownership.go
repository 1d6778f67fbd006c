package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/classquiz/internal/quiz"
	"github.com/mind-engage/classquiz/internal/rbac"
	"github.com/mind-engage/classquiz/internal/store"
)

// Permissions that bypass ownership of classes and quizzes.
const (
	permManageAnyQuiz  = "quiz:manage-any"
	permManageAnyClass = "class:manage-any"
)

type ctxKey int

const (
	quizKey ctxKey = iota
	classKey
)

// withQuiz loads the {quizID} quiz into the request context.
func withQuiz(cat store.Catalog) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q, err := cat.GetQuiz(r.Context(), chi.URLParam(r, "quizID"))
			if err != nil {
				writeErr(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), quizKey, q)))
		})
	}
}

// withClass loads the {code} class into the request context.
func withClass(cat store.Catalog) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := cat.GetClassByCode(r.Context(), chi.URLParam(r, "code"))
			if err != nil {
				writeErr(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), classKey, c)))
		})
	}
}

func quizFrom(r *http.Request) quiz.Quiz {
	q, _ := r.Context().Value(quizKey).(quiz.Quiz)
	return q
}

func classFrom(r *http.Request) quiz.Class {
	c, _ := r.Context().Value(classKey).(quiz.Class)
	return c
}

func createdByCaller(r *http.Request, createdBy string) bool {
	id := viewerOf(r).ID
	return id != "" && createdBy == id
}

func ownsQuiz(r *http.Request) bool  { return createdByCaller(r, quizFrom(r).CreatedBy) }
func ownsClass(r *http.Request) bool { return createdByCaller(r, classFrom(r).CreatedBy) }

// ownedQuiz gates a {quizID} route on perm plus ownership of the quiz.
func ownedQuiz(cat store.Catalog, perm string) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		rbac.Require(perm),
		withQuiz(cat),
		rbac.RequireOwnerOr(permManageAnyQuiz, ownsQuiz),
	}
}

// ownedClass gates a {code} route on perm plus ownership of the class.
func ownedClass(cat store.Catalog, perm string) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		rbac.Require(perm),
		withClass(cat),
		rbac.RequireOwnerOr(permManageAnyClass, ownsClass),
	}
}
