package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/relaymint/tokend/internal/storage/ledgerdb"
)

func TestIsTransient(t *testing.T) {
	assert.False(t, isTransient(nil))
	assert.False(t, isTransient(context.Canceled))
	assert.False(t, isTransient(context.DeadlineExceeded))
	assert.False(t, isTransient(errors.New("boom")))

	unique := ledgerdb.NewConstraintError("insert", "duplicate balance", nil).WithCode("UNIQUE_VIOLATION")
	assert.True(t, isTransient(unique))

	conn := ledgerdb.NewConnectionError("query", "connection refused", nil)
	assert.True(t, isTransient(conn))
}

func TestRetryBackoffDoublesAndCaps(t *testing.T) {
	base := 250 * time.Millisecond

	assert.Equal(t, 250*time.Millisecond, retryBackoff(base, 1))
	assert.Equal(t, 500*time.Millisecond, retryBackoff(base, 2))
	assert.Equal(t, 2*time.Second, retryBackoff(base, 4))
	assert.Equal(t, maxRetryBackoff, retryBackoff(base, 20))
}
