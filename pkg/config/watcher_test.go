package config

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestWatcherInitialConfig(t *testing.T) {
	path := writeConfig(t, "classifier:\n  threshold: 0.7\n")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if got := w.Threshold(); got != 0.7 {
		t.Errorf("Threshold = %v, want 0.7", got)
	}
	if got := w.BlockMode(); got != BlockModeNXDomain {
		t.Errorf("BlockMode = %q, want nxdomain", got)
	}
}

func TestWatcherReload(t *testing.T) {
	path := writeConfig(t, "classifier:\n  threshold: 0.5\n")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	reloaded := make(chan *Config, 1)
	w.OnChange(func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Start(ctx) }()

	// Give the watcher a moment to begin polling events.
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(path, []byte("classifier:\n  threshold: 0.95\n"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Classifier.Threshold != 0.95 {
			t.Errorf("reloaded threshold = %v, want 0.95", cfg.Classifier.Threshold)
		}
		if got := w.Threshold(); got != 0.95 {
			t.Errorf("Threshold = %v, want 0.95", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestWatcherKeepsConfigOnBrokenEdit(t *testing.T) {
	path := writeConfig(t, "classifier:\n  threshold: 0.5\n")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)

	// Invalid threshold fails validation; the previous config must survive.
	if err := os.WriteFile(path, []byte("classifier:\n  threshold: 7\n"), 0600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(500 * time.Millisecond)

	if got := w.Threshold(); got != 0.5 {
		t.Errorf("Threshold = %v, want 0.5 after rejected reload", got)
	}
}
