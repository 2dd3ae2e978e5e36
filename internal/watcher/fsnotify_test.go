package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dshills/sketchlink/internal/engine/history"
)

func TestFSNotifySource_Events(t *testing.T) {
	src, err := NewFSNotifySource()
	if err != nil {
		t.Fatalf("NewFSNotifySource error = %v", err)
	}
	defer src.Close()

	dir := t.TempDir()
	if err := src.Add(dir); err != nil {
		t.Fatalf("Add error = %v", err)
	}

	path := filepath.Join(dir, "new.mmd")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-src.Events():
			if ev.Path == path && (ev.Op.Has(OpCreate) || ev.Op.Has(OpWrite)) {
				return
			}
		case <-timeout:
			t.Fatal("timeout waiting for create event")
		}
	}
}

func TestFSNotifySource_Close(t *testing.T) {
	src, err := NewFSNotifySource()
	if err != nil {
		t.Fatal(err)
	}
	if err := src.Close(); err != nil {
		t.Errorf("Close error = %v", err)
	}
	if err := src.Close(); err != nil {
		t.Errorf("second Close error = %v", err)
	}
	if err := src.Add(t.TempDir()); err != ErrWatcherClosed {
		t.Errorf("Add after Close error = %v, want ErrWatcherClosed", err)
	}
	if _, ok := <-src.Events(); ok {
		t.Error("events channel still open")
	}
}

func TestFileWatcher_RealFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flow.mmd")
	os.WriteFile(path, []byte("graph TD"), 0o644)

	h := history.New("graph TD")
	defer h.Close()

	reloaded := make(chan Reload, 8)
	w, err := New(path, h,
		WithDebounce(20*time.Millisecond),
		OnReload(func(r Reload) { reloaded <- r }),
	)
	if err != nil {
		t.Fatalf("New error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Save by rename, the way many editors do.
	tmp := filepath.Join(dir, ".flow.mmd.swp")
	os.WriteFile(tmp, []byte("graph LR"), 0o644)
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(3 * time.Second)
	for {
		select {
		case r := <-reloaded:
			if r.Err == nil && r.Text == "graph LR" {
				if h.Current() != "graph LR" {
					t.Errorf("history text = %q", h.Current())
				}
				return
			}
		case <-timeout:
			t.Fatalf("timeout waiting for reload; history = %q", h.Current())
		}
	}
}
