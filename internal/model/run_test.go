package model

import (
	"errors"
	"testing"
	"time"
)

// TestNewRun tests Run construction and bookkeeping.
func TestNewRun(t *testing.T) {
	t.Parallel()

	query, err := NewQuery("cute cats", ModeTextSearch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("assigns unique ids", func(t *testing.T) {
		t.Parallel()

		a := NewRun(query, 5, "/tmp/cute-cats")
		b := NewRun(query, 5, "/tmp/cute-cats")
		if a.ID == "" || b.ID == "" {
			t.Fatal("expected non-empty ids")
		}
		if a.ID == b.ID {
			t.Error("expected distinct ids")
		}
	})

	t.Run("counts images and failures", func(t *testing.T) {
		t.Parallel()

		run := NewRun(query, 5, "/tmp/cute-cats")
		run.AddImage(NewImageRecord(query, "https://x.com/a.jpg", time.Now()))
		run.AddImage(NewImageRecord(query, "https://x.com/b.png", time.Now()))
		run.AddImage(NewImageRecord(query, "https://x.com/c.jpg", time.Now()))
		run.AddFailure("https://x.com/d.gif", errors.New("boom"))

		if run.SuccessCount() != 3 {
			t.Errorf("expected 3 successes, got %d", run.SuccessCount())
		}
		if run.FailureCount() != 1 {
			t.Errorf("expected 1 failure, got %d", run.FailureCount())
		}
		counts := run.FormatCounts()
		if counts["jpg"] != 2 || counts["png"] != 1 {
			t.Errorf("unexpected format counts: %v", counts)
		}
	})

	t.Run("SetError marks run as failed", func(t *testing.T) {
		t.Parallel()

		run := NewRun(query, 5, "/tmp/cute-cats")
		if !run.Succeeded() {
			t.Error("expected new run to be successful")
		}
		run.SetError(errors.New("network down"))
		if run.Succeeded() {
			t.Error("expected run to be failed")
		}
		if run.ErrorMessage != "network down" {
			t.Errorf("unexpected error message %q", run.ErrorMessage)
		}
	})

	t.Run("duration is zero until finished", func(t *testing.T) {
		t.Parallel()

		run := NewRun(query, 5, "/tmp/cute-cats")
		if run.Duration() != 0 {
			t.Errorf("expected zero duration, got %v", run.Duration())
		}
		run.Finish()
		if run.Duration() < 0 {
			t.Errorf("expected non-negative duration, got %v", run.Duration())
		}
	})
}
