package server

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestShutdownIsIdempotent(t *testing.T) {
	gs := NewGracefulServer("127.0.0.1:0", http.NewServeMux(), nil)

	if gs.IsShuttingDown() {
		t.Fatal("new server should not be shutting down")
	}

	if err := gs.Shutdown(time.Second); err != nil {
		t.Fatalf("first shutdown failed: %v", err)
	}
	if !gs.IsShuttingDown() {
		t.Error("IsShuttingDown false after shutdown")
	}
	// Second call is a no-op.
	if err := gs.Shutdown(time.Second); err != nil {
		t.Fatalf("second shutdown failed: %v", err)
	}

	select {
	case <-gs.ShutdownChannel():
	default:
		t.Error("shutdown channel not closed")
	}
}

func TestStartReturnsAfterShutdown(t *testing.T) {
	gs := NewGracefulServer("127.0.0.1:0", http.NewServeMux(), nil)

	done := make(chan error, 1)
	go func() { done <- gs.Start() }()

	// Give the listener a moment to bind before shutting down.
	time.Sleep(100 * time.Millisecond)
	if err := gs.Shutdown(5 * time.Second); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after shutdown")
	}
}

func TestConfigReload(t *testing.T) {
	gs := NewGracefulServer("127.0.0.1:0", http.NewServeMux(), nil)

	// No hook registered: not an error.
	if err := gs.ReloadConfig(); err != nil {
		t.Fatalf("reload without hook failed: %v", err)
	}

	called := false
	gs.SetConfigReloadFunc(func() error {
		called = true
		return nil
	})
	if err := gs.ReloadConfig(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if !called {
		t.Error("reload hook not invoked")
	}

	wantErr := errors.New("bad config")
	gs.SetConfigReloadFunc(func() error { return wantErr })
	if err := gs.ReloadConfig(); !errors.Is(err, wantErr) {
		t.Errorf("expected reload error, got %v", err)
	}
}
