package logging

import "testing"

func TestNewProgressSamplerStep(t *testing.T) {
	if s := NewProgressSampler(0); s.step != defaultProgressStep {
		t.Fatalf("step = %v, want default", s.step)
	}
	if s := NewProgressSampler(25); s.step != 25 {
		t.Fatalf("step = %v, want 25", s.step)
	}
}

func TestProgressSamplerNilAllowsEverything(t *testing.T) {
	var s *ProgressSampler
	if !s.Allow("transfer", 42) {
		t.Fatal("nil sampler should allow")
	}
	s.Reset()
}

func TestProgressSamplerSteps(t *testing.T) {
	s := NewProgressSampler(10)
	steps := []struct {
		phase   string
		percent float64
		want    bool
	}{
		{"transfer", 0, true},
		{"transfer", 4, false},
		{"transfer", 10, true},
		{"transfer", 19.9, false},
		{"transfer", 8, false},
		{"transfer", 35, true},
		{"transfer", 100, true},
		{"transfer", 100, false},
		{"processing", -1, true},
		{"processing", -1, false},
		{"processing", 0, true},
		{"processing", 55, true},
	}
	for i, step := range steps {
		if got := s.Allow(step.phase, step.percent); got != step.want {
			t.Fatalf("step %d (%s %.1f): got %v, want %v", i, step.phase, step.percent, got, step.want)
		}
	}
}

func TestProgressSamplerReset(t *testing.T) {
	s := NewProgressSampler(10)
	s.Allow("transfer", 50)
	if s.Allow("transfer", 50) {
		t.Fatal("repeat should be suppressed")
	}
	s.Reset()
	if !s.Allow("transfer", 50) {
		t.Fatal("expected log after reset")
	}
}
