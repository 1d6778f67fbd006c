package rbac

import "net/http"

var defaultChecker = NewChecker(nil)

func forbid(w http.ResponseWriter) {
	http.Error(w, "forbidden", http.StatusForbidden)
}

// Require lets the request through when the caller's role holds perm.
func Require(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !Allowed(r.Context(), perm) {
				forbid(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOwnerOr lets the request through when isOwner accepts it or the
// caller's role holds perm. Instructors use it to reach only their own
// classes and quizzes; admins hold the *:manage-any permissions.
func RequireOwnerOr(perm string, isOwner func(r *http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isOwner(r) && !Allowed(r.Context(), perm) {
				forbid(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
