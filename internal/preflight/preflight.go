package preflight

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"callpipe/internal/config"
)

// Kind groups checks by how the daemon reacts to a failure.
type Kind string

const (
	KindDirectory Kind = "directory"
	KindEndpoint  Kind = "endpoint"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Kind   Kind
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := RunDirectories(cfg)
	return append(results, RunEndpoints(ctx, cfg)...)
}

// RunDirectories checks the state and log directories.
func RunDirectories(cfg *config.Config) []Result {
	return []Result{
		withKind(CheckDirectoryAccess("State directory", cfg.Paths.StateDir), KindDirectory),
		withKind(CheckDirectoryAccess("Log directory", cfg.Paths.LogDir), KindDirectory),
	}
}

// RunEndpoints checks the storage endpoint and, when it differs, the
// processing endpoint.
func RunEndpoints(ctx context.Context, cfg *config.Config) []Result {
	results := []Result{
		withKind(CheckEndpoint(ctx, "Storage endpoint", cfg.Storage.BaseURL, cfg.Storage.APIToken), KindEndpoint),
	}
	if processingIsDistinct(cfg) {
		results = append(results,
			withKind(CheckEndpoint(ctx, "Processing endpoint", cfg.Processing.BaseURL, cfg.Processing.APIToken), KindEndpoint))
	}
	return results
}

// Failures joins the failed results of kind into one error, or returns nil.
// An empty kind matches every result.
func Failures(results []Result, kind Kind) error {
	var failed []string
	for _, r := range results {
		if r.Passed || (kind != "" && r.Kind != kind) {
			continue
		}
		failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	if len(failed) == 0 {
		return nil
	}
	return errors.New("preflight failed: " + strings.Join(failed, "; "))
}

// processingIsDistinct reports whether the processing endpoint resolves to a
// different URL or token than storage. When identical, the storage check
// already covers it.
func processingIsDistinct(cfg *config.Config) bool {
	return strings.TrimRight(cfg.Processing.BaseURL, "/") != strings.TrimRight(cfg.Storage.BaseURL, "/") ||
		cfg.Processing.APIToken != cfg.Storage.APIToken
}

func withKind(r Result, kind Kind) Result {
	r.Kind = kind
	return r
}
