package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"callpipe/internal/config"
	"callpipe/internal/logging"
	"callpipe/internal/notifications"
	"callpipe/internal/queue"
	"callpipe/internal/testsupport"
	"callpipe/internal/workflow"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

type ntfyRecorder struct {
	mu       sync.Mutex
	requests []captured
}

func (r *ntfyRecorder) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", req.Method)
		}
		body, err := io.ReadAll(req.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		r.mu.Lock()
		r.requests = append(r.requests, captured{
			title:    req.Header.Get("Title"),
			tags:     req.Header.Get("Tags"),
			priority: req.Header.Get("Priority"),
			body:     string(body),
		})
		r.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}
}

func (r *ntfyRecorder) all() []captured {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]captured(nil), r.requests...)
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventTaskFailed, notifications.Payload{"artifact": "a.mp3"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "task failed during upload",
			event: notifications.EventTaskFailed,
			payload: notifications.Payload{
				"artifact": "call-0142.mp3",
				"error":    "connection reset by peer",
				"stage":    "upload",
			},
			expectTitle:    "Callpipe - Upload Failed",
			expectMessage:  "❌ call-0142.mp3 failed during upload: connection reset by peer",
			expectTags:     "callpipe,task,failed",
			expectPriority: "high",
		},
		{
			name:  "batch completed",
			event: notifications.EventBatchCompleted,
			payload: notifications.Payload{
				"completed":   3,
				"destination": "acme-calls",
			},
			expectTitle:   "Callpipe - Batch Complete",
			expectMessage: "✅ 3 file(s) processed\nDestination: acme-calls",
			expectTags:    "callpipe,batch,completed",
		},
		{
			name:  "batch completed with errors",
			event: notifications.EventBatchCompleted,
			payload: notifications.Payload{
				"completed": 2,
				"failed":    1,
			},
			expectTitle:   "Callpipe - Batch Complete (with errors)",
			expectMessage: "Batch finished: 2 completed, 1 failed, 0 cancelled",
			expectTags:    "callpipe,batch,completed",
		},
		{
			name:           "test",
			event:          notifications.EventTest,
			expectTitle:    "Callpipe - Test",
			expectMessage:  "🧪 Notification system test",
			expectTags:     "callpipe,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := &ntfyRecorder{}
			server := httptest.NewServer(rec.handler(t))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			got := rec.all()
			if len(got) != 1 {
				t.Fatalf("expected 1 request, got %d", len(got))
			}
			if got[0].title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, got[0].title)
			}
			if got[0].body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, got[0].body)
			}
			if got[0].tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, got[0].tags)
			}
			if got[0].priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, got[0].priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresDisabledEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.TaskFailed = false
	cfg.Notifications.BatchCompleted = false

	svc := notifications.NewService(&cfg)
	for _, event := range []notifications.Event{notifications.EventTaskFailed, notifications.EventBatchCompleted} {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"artifact": "ignored"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic is read-only", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	err := notifications.NewService(&cfg).Publish(context.Background(), notifications.EventTest, nil)
	if err == nil || !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "topic is read-only") {
		t.Fatalf("expected 403 error with body, got %v", err)
	}
}

func TestNotifierForwardsFailuresAndBatches(t *testing.T) {
	rec := &ntfyRecorder{}
	server := httptest.NewServer(rec.handler(t))
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithNtfyTopic(server.URL))
	notifier := notifications.NewNotifier(notifications.NewService(cfg), logging.NewNop())

	failed := queue.Task{
		ID:           "t1",
		Artifact:     testsupport.MemoryArtifact("call.mp3", 10),
		Status:       queue.StatusFailed,
		FailureKind:  queue.FailureProcessing,
		ErrorMessage: "unreadable audio",
	}
	stopped := failed
	stopped.ErrorMessage = queue.DaemonStopReason
	active := failed
	active.Status = queue.StatusTransferring

	notifier.Observe(workflow.Event{Kind: workflow.EventTaskUpdated, Task: failed})
	notifier.Observe(workflow.Event{Kind: workflow.EventTaskUpdated, Task: stopped})
	notifier.Observe(workflow.Event{Kind: workflow.EventTaskUpdated, Task: active})
	notifier.Observe(workflow.Event{
		Kind:    workflow.EventBatchFinished,
		BatchID: "b1",
		Task:    queue.Task{Settings: queue.Settings{Destination: "acme-calls"}},
		Summary: queue.Summary{Total: 2, Completed: 1, Failed: 1},
	})
	notifier.Close()
	notifier.Observe(workflow.Event{Kind: workflow.EventTaskUpdated, Task: failed})

	got := rec.all()
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d: %#v", len(got), got)
	}
	titles := map[string]string{}
	for _, c := range got {
		titles[c.title] = c.body
	}
	if body := titles["Callpipe - Upload Failed"]; body != "❌ call.mp3 failed during processing: unreadable audio" {
		t.Fatalf("unexpected failure body %q", body)
	}
	if body := titles["Callpipe - Batch Complete (with errors)"]; body != "Batch finished: 1 completed, 1 failed, 0 cancelled\nDestination: acme-calls" {
		t.Fatalf("unexpected batch body %q", body)
	}
}

func TestNotifierWithManager(t *testing.T) {
	rec := &ntfyRecorder{}
	server := httptest.NewServer(rec.handler(t))
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithNtfyTopic(server.URL))
	notifier := notifications.NewNotifier(notifications.NewService(cfg), logging.NewNop())
	mgr := workflow.NewManager(cfg, &testsupport.FakeUploader{}, testsupport.NewStatusSource(), logging.NewNop(),
		workflow.WithObserver(notifier))
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mgr.Stop()

	if _, err := mgr.Submit(context.Background(), []queue.Artifact{testsupport.MemoryArtifact("a.wav", 512)},
		queue.Settings{Destination: "acme-calls"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	testsupport.WaitFor(t, 3*time.Second, func() bool { return len(rec.all()) == 1 })
	notifier.Close()
	if got := rec.all()[0].title; got != "Callpipe - Batch Complete" {
		t.Fatalf("unexpected notification %q", got)
	}
}
