package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"callpipe/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		status int
		token  string
		passed bool
		detail string
	}{
		{"healthy", http.StatusOK, "good", true, "Reachable"},
		{"no health route", http.StatusNotFound, "good", true, "Reachable (no health route)"},
		{"bad token", http.StatusUnauthorized, "bad", false, "auth failed (invalid api token)"},
		{"server error", http.StatusBadGateway, "good", false, "health check failed (502)"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != healthPath {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				if got := r.Header.Get("Authorization"); got != "Bearer "+tc.token {
					t.Errorf("unexpected auth header %q", got)
				}
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			result := CheckEndpoint(context.Background(), "Storage endpoint", srv.URL+"/", tc.token)
			if result.Passed != tc.passed || result.Detail != tc.detail {
				t.Fatalf("got %+v, want passed=%v detail=%q", result, tc.passed, tc.detail)
			}
		})
	}
}

func TestCheckEndpoint_MissingURL(t *testing.T) {
	result := CheckEndpoint(context.Background(), "Storage endpoint", " ", "token")
	if result.Passed || result.Detail != "missing url" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestCheckEndpoint_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	result := CheckEndpoint(context.Background(), "Storage endpoint", url, "")
	if result.Passed {
		t.Fatal("expected failure for closed server")
	}
}

func TestRunAllSkipsDuplicateProcessingEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Storage.BaseURL = srv.URL
	cfg.Processing.BaseURL = srv.URL
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), &cfg)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d: %+v", len(results), results)
	}
	if err := Failures(results, ""); err != nil {
		t.Fatalf("expected all checks to pass: %v", err)
	}

	cfg.Processing.APIToken = "other"
	if got := len(RunEndpoints(context.Background(), &cfg)); got != 2 {
		t.Fatalf("expected distinct processing endpoint to be checked, got %d results", got)
	}
}

func TestFailuresFiltersByKind(t *testing.T) {
	results := []Result{
		{Name: "State directory", Kind: KindDirectory, Passed: true},
		{Name: "Storage endpoint", Kind: KindEndpoint, Detail: "unreachable"},
	}
	if err := Failures(results, KindDirectory); err != nil {
		t.Fatalf("expected no directory failures, got %v", err)
	}
	err := Failures(results, KindEndpoint)
	if err == nil || !strings.Contains(err.Error(), "Storage endpoint: unreachable") {
		t.Fatalf("unexpected error %v", err)
	}
}
