package auth

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/mind-engage/classquiz/internal/db"
	"github.com/mind-engage/classquiz/internal/rbac"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	conn, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIssueAndParse(t *testing.T) {
	a := NewAuthService("secret")
	tok, err := a.IssueJWT("u1", "teacher", "Ada")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	c, err := a.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Sub != "u1" || c.Role != "teacher" || c.Name != "Ada" {
		t.Fatalf("claims = %+v", c)
	}
	if _, err := NewAuthService("other").Parse(tok); err == nil {
		t.Fatalf("token signed with another secret must not parse")
	}
}

func TestJWTMiddleware_SetsContext(t *testing.T) {
	a := NewAuthService("secret")
	tok, _ := a.IssueJWT("stu-1", "student", "Ben")

	var sub, role, name string
	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub = SubjectFromContext(r.Context())
		role = rbac.RoleFromContext(r.Context())
		name = NameFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if sub != "stu-1" || role != "student" || name != "Ben" {
		t.Fatalf("context = %q %q %q", sub, role, name)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing bearer: status %d", rec.Code)
	}
}

func TestRegisterLoginFlow(t *testing.T) {
	conn := openDB(t)
	a := NewAuthService("secret")
	users := NewUserStore(conn)
	register := RegisterHandler(a, users)
	login := LoginHandler(a, users)

	rec := postJSON(t, register, "/auth/register", map[string]string{
		"email": "Ada@Example.com", "name": "Ada", "password": "hunter22", "role": "teacher",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", rec.Code, rec.Body.String())
	}
	var out tokenResp
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.AccessToken == "" || out.User.Email != "ada@example.com" {
		t.Fatalf("register response = %+v", out)
	}

	rec = postJSON(t, register, "/auth/register", map[string]string{
		"email": "ada@example.com", "name": "Ada 2", "password": "hunter22", "role": "student",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate email: %d", rec.Code)
	}

	rec = postJSON(t, register, "/auth/register", map[string]string{
		"email": "not-an-email", "name": "X", "password": "hunter22", "role": "student",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad email: %d", rec.Code)
	}

	rec = postJSON(t, login, "/auth/login", map[string]string{"email": "ada@example.com", "password": "hunter22"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d", rec.Code)
	}
	rec = postJSON(t, login, "/auth/login", map[string]string{"email": "ada@example.com", "password": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: %d", rec.Code)
	}
}

func TestChangePassword(t *testing.T) {
	conn := openDB(t)
	users := NewUserStore(conn)
	u, err := users.Create(context.Background(), "s@example.com", "S", "student", "oldpass")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h := ChangePasswordHandler(users)

	do := func(old, nw string) int {
		b, _ := json.Marshal(map[string]string{"old_password": old, "new_password": nw})
		req := httptest.NewRequest(http.MethodPost, "/users/change-password", bytes.NewReader(b))
		req = req.WithContext(WithSubject(req.Context(), u.ID))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := do("wrong", "newpass"); code != http.StatusForbidden {
		t.Fatalf("wrong old password: %d", code)
	}
	if code := do("oldpass", "newpass"); code != http.StatusNoContent {
		t.Fatalf("change: %d", code)
	}
	if _, err := users.Authenticate(context.Background(), "s@example.com", "newpass"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestAttachRoleFromDB(t *testing.T) {
	conn := openDB(t)
	users := NewUserStore(conn)
	u, _ := users.Create(context.Background(), "t@example.com", "T", "teacher", "secret1")

	var got string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { got = rbac.RoleFromContext(r.Context()) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := rbac.WithRole(WithSubject(req.Context(), u.ID), "student")
	rec := httptest.NewRecorder()
	AttachRoleFromDB(conn, false)(next).ServeHTTP(rec, req.WithContext(ctx))
	if got != "teacher" {
		t.Fatalf("role = %q, want stored role", got)
	}

	ctx = rbac.WithRole(WithSubject(req.Context(), "ghost"), "student")
	rec = httptest.NewRecorder()
	AttachRoleFromDB(conn, false)(next).ServeHTTP(rec, req.WithContext(ctx))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unknown user without fallback: %d", rec.Code)
	}
}
