package resilience

import (
	"time"

	"github.com/sells-group/bibmerge/internal/model"
)

// DLQEntry represents a raw record whose ingestion failed and can be
// retried later.
type DLQEntry struct {
	ID           string          `json:"id"`
	Record       model.RawRecord `json:"record"`
	Origin       string          `json:"origin,omitempty"` // input file and line, when known
	Error        string          `json:"error"`
	ErrorType    string          `json:"error_type"` // "transient" or "permanent"
	RetryCount   int             `json:"retry_count"`
	MaxRetries   int             `json:"max_retries"`
	NextRetryAt  time.Time       `json:"next_retry_at"`
	CreatedAt    time.Time       `json:"created_at"`
	LastFailedAt time.Time       `json:"last_failed_at"`
}

// DLQFilter specifies criteria for querying the dead letter queue.
type DLQFilter struct {
	ErrorType string `json:"error_type,omitempty"` // "transient", "permanent", or "" for all
	Limit     int    `json:"limit,omitempty"`
	// All includes entries that are not yet due or have exhausted retries.
	All bool `json:"all,omitempty"`
}

// CanRetry returns true if this entry hasn't exceeded its max retry count.
func (e *DLQEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}

// NextRetry returns when an entry that has failed attempt times should be
// tried again, doubling base each time up to max.
func NextRetry(now time.Time, attempt int, base, max time.Duration) time.Time {
	d := base
	for i := 0; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return now.Add(d)
}
