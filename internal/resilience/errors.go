package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransientError wraps an error that is safe to retry (lock contention,
// serialization failure, dropped connection).
type TransientError struct {
	Err error
	Op  string
}

func (e *TransientError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError marks err, raised by op, as transient.
func NewTransientError(err error, op string) *TransientError {
	return &TransientError{Err: err, Op: op}
}

// transientPatterns match driver errors that go away on retry.
var transientPatterns = []string{
	// network, for the Postgres store
	"connection reset by peer",
	"broken pipe",
	"i/o timeout",
	"no such host",
	"server closed the connection unexpectedly",
	"conn closed",
	// SQLite lock contention
	"database is locked",
	"database table is locked",
	"sqlite_busy",
	// Postgres concurrency and capacity
	"deadlock detected",
	"could not serialize access",
	"too many connections",
	"the database system is starting up",
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient error patterns (network
// timeouts, connection resets, database lock contention).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
