package storage_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"callpipe/internal/services"
	"callpipe/internal/services/storage"
)

func TestUploadStreamsMultipart(t *testing.T) {
	payload := bytes.Repeat([]byte("a"), 64*1024)
	var gotFields map[string]string
	var gotFile []byte
	var gotAuth, gotName, gotType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/projects/team%20a/files" && r.URL.Path != "/api/v1/projects/team a/files" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		reader, err := r.MultipartReader()
		if err != nil {
			t.Errorf("multipart reader: %v", err)
			return
		}
		gotFields = map[string]string{}
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Errorf("next part: %v", err)
				return
			}
			data, _ := io.ReadAll(part)
			if part.FormName() == "file" {
				gotFile = data
				gotName = part.FileName()
				gotType = part.Header.Get("Content-Type")
				continue
			}
			gotFields[part.FormName()] = string(data)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"remote-1"}`))
	}))
	defer srv.Close()

	client := storage.NewClient(srv.URL+"/", "secret", srv.Client())
	res, err := client.Upload(context.Background(), storage.UploadRequest{
		Destination: "team a",
		FileName:    "call.mp3",
		ContentType: "audio/mpeg",
		Size:        int64(len(payload)),
		Body:        bytes.NewReader(payload),
		Fields:      map[string]string{"model": "m1", "auto_process": "true"},
	})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if res.RemoteID != "remote-1" {
		t.Fatalf("unexpected remote id %q", res.RemoteID)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected authorization %q", gotAuth)
	}
	if !bytes.Equal(gotFile, payload) {
		t.Fatalf("file payload mismatch: %d bytes", len(gotFile))
	}
	if gotName != "call.mp3" || gotType != "audio/mpeg" {
		t.Fatalf("unexpected file part metadata %q %q", gotName, gotType)
	}
	if gotFields["model"] != "m1" || gotFields["auto_process"] != "true" {
		t.Fatalf("unexpected fields %v", gotFields)
	}
}

func TestUploadClassifiesErrors(t *testing.T) {
	cases := []struct {
		status int
		body   string
		marker error
	}{
		{http.StatusBadRequest, `{"detail":"Unsupported file format"}`, services.ErrValidation},
		{http.StatusUnauthorized, `{"detail":"bad token"}`, services.ErrConfiguration},
		{http.StatusNotFound, `not here`, services.ErrNotFound},
		{http.StatusServiceUnavailable, ``, services.ErrTransient},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.Copy(io.Discard, r.Body)
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		}))
		client := storage.NewClient(srv.URL, "", srv.Client())
		_, err := client.Upload(context.Background(), storage.UploadRequest{
			Destination: "p1",
			FileName:    "a.wav",
			Body:        strings.NewReader("data"),
		})
		srv.Close()
		if !errors.Is(err, tc.marker) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.marker, err)
		}
		if tc.status == http.StatusBadRequest && !strings.Contains(err.Error(), "Unsupported file format") {
			t.Fatalf("expected detail in error, got %v", err)
		}
	}
}

func TestUploadRejectsMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	client := storage.NewClient(srv.URL, "", srv.Client())
	_, err := client.Upload(context.Background(), storage.UploadRequest{Destination: "p1", FileName: "a.wav", Body: strings.NewReader("x")})
	if !errors.Is(err, services.ErrExternal) {
		t.Fatalf("expected external error, got %v", err)
	}
}

func TestUploadRequiresDestination(t *testing.T) {
	client := storage.NewClient("http://127.0.0.1:1", "", nil)
	_, err := client.Upload(context.Background(), storage.UploadRequest{FileName: "a.wav", Body: strings.NewReader("x")})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUploadHonoursCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := storage.NewClient(srv.URL, "", srv.Client())
	_, err := client.Upload(ctx, storage.UploadRequest{Destination: "p1", FileName: "a.wav", Body: strings.NewReader("x")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestCheckDestination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/projects/known" {
			_, _ = w.Write([]byte(`{"id":"known"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	client := storage.NewClient(srv.URL, "", srv.Client())

	if err := client.CheckDestination(context.Background(), "known"); err != nil {
		t.Fatalf("expected known destination to resolve, got %v", err)
	}
	if err := client.CheckDestination(context.Background(), "ghost"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := client.CheckDestination(context.Background(), " "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
