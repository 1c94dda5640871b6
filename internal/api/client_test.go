package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientDecodesErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(errorResponse{Error: "task t-1: cannot resume from completed"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", time.Second)
	_, err := client.Resume(context.Background(), "t-1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.Message != "task t-1: cannot resume from completed" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
	if !IsStatus(err, http.StatusConflict) {
		t.Fatal("IsStatus should match")
	}
}

func TestClientSendsTokenAndPaths(t *testing.T) {
	var gotAuth, gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(HistoryResponse{Entries: []HistoryEntry{{TaskID: "t-1"}}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", "tok", time.Second)
	entries, err := client.History(context.Background(), "failed", 5)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 1 || entries[0].TaskID != "t-1" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotPath != "/api/history" || gotQuery != "limit=5&status=failed" {
		t.Fatalf("unexpected request %s?%s", gotPath, gotQuery)
	}
}

func TestClientUnavailable(t *testing.T) {
	client := NewClient("127.0.0.1:1", "", 500*time.Millisecond)
	if _, err := client.Status(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestNewClientNormalizesBind(t *testing.T) {
	if got := NewClient("127.0.0.1:7489", "", 0).BaseURL(); got != "http://127.0.0.1:7489" {
		t.Fatalf("unexpected base url %q", got)
	}
	if got := NewClient("https://calls.example/", "", 0).BaseURL(); got != "https://calls.example" {
		t.Fatalf("unexpected base url %q", got)
	}
}
