package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/petervdpas/goop2/internal/proto"
)

func TestJoinReturnsMatchedSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/video_chat/join" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(JoinResult{
			Status: "matched",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, func() string { return "tok123" })
	res, err := c.Join(context.Background())
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if res.Status != "matched" {
		t.Fatalf("expected matched, got %q", res.Status)
	}
}

func TestUnauthorizedMapsToAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, func() string { return "" })
	_, err := c.Status(context.Background())
	if err == nil {
		t.Fatalf("expected an error")
	}
	var authErr *proto.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *proto.AuthError, got %T: %v", err, err)
	}
	t.Helper()
}

func TestBearerTokenIsSent(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(SwipeResult{Success: true})
	}))
	defer srv.Close()

	c := New(srv.URL, func() string { return "sekret" })
	if _, err := c.Swipe(context.Background()); err != nil {
		t.Fatalf("Swipe: %v", err)
	}
	if gotAuth != "Bearer sekret" {
		t.Fatalf("expected Bearer sekret, got %q", gotAuth)
	}
}
