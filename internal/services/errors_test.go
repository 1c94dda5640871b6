package services_test

import (
	"errors"
	"strings"
	"testing"

	"callpipe/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternal, "transfer", "upload", "failed", base)
	if !errors.Is(err, services.ErrExternal) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"transfer", "upload", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarkerAndDetail(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected default detail, got %q", err.Error())
	}
}

func TestTemporaryClassification(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{services.Wrap(services.ErrValidation, "transfer", "upload", "rejected", nil), false},
		{services.Wrap(services.ErrNotFound, "poll", "status", "gone", nil), false},
		{services.Wrap(services.ErrTimeout, "poll", "status", "slow", nil), true},
		{services.Wrap(services.ErrTransient, "transfer", "upload", "reset", errors.New("io")), true},
	}
	for _, tc := range cases {
		if got := services.Temporary(tc.err); got != tc.want {
			t.Fatalf("Temporary(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestErrorHintPerMarker(t *testing.T) {
	if hint := services.ErrorHint(nil); hint != "" {
		t.Fatalf("expected empty hint for nil error, got %q", hint)
	}
	config := services.ErrorHint(services.Wrap(services.ErrConfiguration, "transfer", "request", "bad url", nil))
	timeout := services.ErrorHint(services.Wrap(services.ErrTimeout, "poll", "status", "slow", nil))
	if config == timeout || config == "" || timeout == "" {
		t.Fatalf("expected distinct hints, got %q and %q", config, timeout)
	}
}
