package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"callpipe/internal/config"
	"callpipe/internal/daemon"
	"callpipe/internal/logging"
	"callpipe/internal/services/processing"
	"callpipe/internal/testsupport"
	"callpipe/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	uploader   *testsupport.FakeUploader
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, uploader *testsupport.FakeUploader) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))
	if uploader == nil {
		uploader = &testsupport.FakeUploader{}
	}

	d, err := daemon.New(cfg, logging.NewNop(), daemon.Dependencies{
		Uploader: uploader,
		Status:   testsupport.NewStatusSource(testsupport.Stage(processing.StageAnalyzing, 50), testsupport.Stage(processing.StageCompleted)),
		PollTiming: &workflow.PollTiming{
			InitialDelay: time.Millisecond,
			Interval:     2 * time.Millisecond,
			QueryTimeout: time.Second,
			MaxFailures:  3,
		},
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}

	fileCfg := *cfg
	fileCfg.Paths.APIBind = d.APIAddress()
	configPath := filepath.Join(base, "callpipe.toml")
	writeTestConfig(t, configPath, &fileCfg)

	return &cliTestEnv{
		cfg:        cfg,
		daemon:     d,
		uploader:   uploader,
		configPath: configPath,
		baseDir:    base,
	}
}

func (e *cliTestEnv) writeArtifact(t *testing.T, name string, size int64) string {
	t.Helper()
	path := filepath.Join(e.baseDir, "calls", name)
	testsupport.WriteFile(t, path, size)
	return path
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
