package engine

import (
	"context"
	"errors"
	"time"

	"github.com/relaymint/tokend/internal/storage/ledgerdb"
)

// maxRetryBackoff caps the wait between attempts.
const maxRetryBackoff = 5 * time.Second

// isTransient reports whether a failure is worth another pass through the
// handler. Serialization aborts, deadlocks and connectivity drops retry by
// nature. A unique violation retries too: the interesting case is a
// concurrent first-credit race where the peer created the balance row and
// the retry will credit it instead.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if ledgerdb.IsUniqueViolation(err) {
		return true
	}
	return ledgerdb.IsRetryable(err)
}

// retryBackoff returns the wait before re-entering after the given failed
// attempt, doubling from base up to maxRetryBackoff. A recovering store is
// not hammered with back-to-back passes.
func retryBackoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt && d < maxRetryBackoff; i++ {
		d *= 2
	}
	if d > maxRetryBackoff {
		d = maxRetryBackoff
	}
	return d
}
