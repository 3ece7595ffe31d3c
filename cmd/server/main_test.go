package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/p-n-ai/pai-progress/internal/platform/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LogConfig
		wantJSON  bool
		wantDebug bool
	}{
		{"json info default", config.LogConfig{Level: "info", Format: "json"}, true, false},
		{"text debug", config.LogConfig{Level: "debug", Format: "text"}, false, true},
		{"unknown level falls back to info", config.LogConfig{Level: "loud", Format: "json"}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(&buf, tt.cfg)

			logger.Debug("debug line")
			logger.Info("info line", "k", "v")

			out := buf.String()
			if got := strings.Contains(out, "debug line"); got != tt.wantDebug {
				t.Errorf("debug logged = %v, want %v", got, tt.wantDebug)
			}
			if got := strings.HasPrefix(out, "{") || strings.Contains(out, "\n{"); got != tt.wantJSON {
				t.Errorf("json output = %v, want %v: %s", got, tt.wantJSON, out)
			}
		})
	}
}

func TestRun_MissingCatalog(t *testing.T) {
	cfg := &config.Config{
		CatalogPath: filepath.Join(t.TempDir(), "missing"),
		Store:       "memory",
		Quiz:        config.QuizConfig{DeadlineStore: "memory", SweepInterval: 1},
	}
	if err := run(t.Context(), cfg); err == nil {
		t.Fatal("run() with missing catalog should error")
	}
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	dir := t.TempDir()
	catalog := "topics:\n  - slug: polynomial-functions\n    title: Polynomial Functions\n    order: 1\n"
	if err := os.WriteFile(filepath.Join(dir, "catalog.yaml"), []byte(catalog), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		Server:      config.ServerConfig{Host: "127.0.0.1", Port: 0},
		CatalogPath: dir,
		Store:       "memory",
		Quiz:        config.QuizConfig{DeadlineStore: "memory", SweepInterval: 1},
	}

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}
