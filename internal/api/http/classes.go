package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/classquiz/internal/quiz"
	"github.com/mind-engage/classquiz/internal/rbac"
	"github.com/mind-engage/classquiz/internal/store"
)

// POST /classes
func CreateClassHandler(cat store.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c quiz.Class
		if !decode(w, r, &c) {
			return
		}
		v := viewerOf(r)
		c.Code = "" // always generated
		c.CreatedBy = v.ID
		if c.Instructor == "" {
			c.Instructor = v.Name
		}
		if err := c.Validate(); err != nil {
			writeErr(w, err)
			return
		}
		out, err := cat.CreateClass(r.Context(), c)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

// GET /classes lists the caller's own classes: created ones for instructors,
// joined ones for students, every class for admins.
func ListClassesHandler(cat store.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := viewerOf(r)
		var (
			out []quiz.Class
			err error
		)
		switch {
		case v.isStudent():
			out, err = cat.EnrolledClasses(r.Context(), v.ID)
		case rbac.Allowed(r.Context(), permManageAnyClass):
			out, err = cat.ListClasses(r.Context(), "")
		default:
			out, err = cat.ListClasses(r.Context(), v.ID)
		}
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": out})
	}
}

// GET /classes/{code}
func GetClassHandler(cat store.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := cat.GetClassByCode(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

// DELETE /classes/{code} removes the class with its enrollments and quizzes.
// The route loads the class and checks ownership.
func DeleteClassHandler(cat store.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cat.DeleteClass(r.Context(), classFrom(r).Code); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /classes/join  { "code": "AB12CD" }
func JoinClassHandler(cat store.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Code string `json:"code"`
		}
		if !decode(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Code) == "" {
			http.Error(w, "code required", http.StatusBadRequest)
			return
		}
		c, err := cat.Enroll(r.Context(), viewerOf(r).ID, req.Code)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "invalid class code", http.StatusNotFound)
			return
		}
		if errors.Is(err, store.ErrConflict) {
			http.Error(w, "already enrolled in "+c.Code, http.StatusConflict)
			return
		}
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	}
}

// DELETE /classes/{code}/enrollment
func LeaveClassHandler(cat store.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cat.Unenroll(r.Context(), viewerOf(r).ID, chi.URLParam(r, "code")); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
