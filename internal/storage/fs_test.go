package storage

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestFSStoreRoundTrip(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), "http://localhost:8080/")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	key, err := s.Put("exports/q1.json", strings.NewReader(`{"title":"Loops"}`))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	rc, err := s.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	rc.Close()
	if string(b) != `{"title":"Loops"}` {
		t.Fatalf("content = %q", b)
	}
	u, _ := s.URL(key)
	if u != "http://localhost:8080/exports/q1.json" {
		t.Fatalf("url = %q", u)
	}
	if err := s.Delete(key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(key); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestFSStoreRejectsTraversal(t *testing.T) {
	s, _ := NewFSStore(t.TempDir(), "")
	for _, k := range []string{"", "../etc/passwd", "a/../../b", "a/./b"} {
		if _, err := s.Put(k, strings.NewReader("x")); !errors.Is(err, ErrBadKey) {
			t.Fatalf("key %q: expected ErrBadKey, got %v", k, err)
		}
	}
}
