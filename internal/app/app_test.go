package app

import (
	"testing"

	"github.com/ankabe/policyfaq/internal/testutil"
)

func TestClose_PartiallyInitialized(t *testing.T) {
	// Setup cleans up through Close on failure, so Close must tolerate
	// whatever subset of fields got populated.
	a := &App{Logger: testutil.DiscardLogger()}
	if err := a.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestClose_RunsCleanups(t *testing.T) {
	var canceled, otelShutdown bool
	a := &App{
		Logger:      testutil.DiscardLogger(),
		cancel:      func() { canceled = true },
		otelCleanup: func() { otelShutdown = true },
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !canceled {
		t.Error("Close() did not cancel background context")
	}
	if !otelShutdown {
		t.Error("Close() did not run otel cleanup")
	}
}
