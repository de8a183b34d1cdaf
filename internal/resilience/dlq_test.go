package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/sells-group/bibmerge/internal/model"
)

func TestDLQEntry_CanRetry(t *testing.T) {
	tests := []struct {
		name       string
		retryCount int
		maxRetries int
		want       bool
	}{
		{"below max", 0, 3, true},
		{"at max", 3, 3, false},
		{"above max", 5, 3, false},
		{"one below max", 2, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := DLQEntry{
				RetryCount: tt.retryCount,
				MaxRetries: tt.maxRetries,
			}
			if got := e.CanRetry(); got != tt.want {
				t.Errorf("CanRetry() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"transient error", NewTransientError(errors.New("database is locked"), "commit"), "transient"},
		{"permanent error", errors.New("invalid input"), "permanent"},
		{"connection reset", errors.New("connection reset by peer"), "transient"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDLQEntry_Record(t *testing.T) {
	e := DLQEntry{
		Record: model.RawRecord{Source: "arxiv", Title: "Test Paper"},
		Origin: "arxiv.jsonl:3",
	}
	if e.Record.Source != "arxiv" {
		t.Errorf("expected record source, got %q", e.Record.Source)
	}
}

func TestNextRetry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Minute},
		{1, 2 * time.Minute},
		{3, 8 * time.Minute},
		{10, 10 * time.Minute},
	}
	for _, tt := range tests {
		got := NextRetry(now, tt.attempt, time.Minute, 10*time.Minute)
		if got.Sub(now) != tt.want {
			t.Errorf("NextRetry(attempt=%d) = %v, want %v", tt.attempt, got.Sub(now), tt.want)
		}
	}
}
