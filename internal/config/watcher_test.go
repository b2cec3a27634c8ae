package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"
)

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "limits:\n  requests_per_minute: 30\n")

	applied := make(chan *Config, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		_ = Watch(ctx, path, logger, func(cfg *Config) {
			applied <- cfg
		})
	}()

	// Give the watcher a moment to install before writing.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("limits:\n  requests_per_minute: 90\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-applied:
		if cfg.Limits.RequestsPerMinute != 90 {
			t.Errorf("reloaded requests_per_minute = %d, want 90", cfg.Limits.RequestsPerMinute)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("config change never applied")
	}
}

func TestWatch_IgnoresInvalidReload(t *testing.T) {
	path := writeConfig(t, "limits:\n  requests_per_minute: 30\n")

	applied := make(chan *Config, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		_ = Watch(ctx, path, logger, func(cfg *Config) {
			applied <- cfg
		})
	}()

	time.Sleep(100 * time.Millisecond)

	// A broken file must not reach apply.
	if err := os.WriteFile(path, []byte("limits: ["), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-applied:
		t.Errorf("invalid config applied: %+v", cfg)
	case <-time.After(1 * time.Second):
	}
}
