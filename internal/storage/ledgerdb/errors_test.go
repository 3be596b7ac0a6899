package ledgerdb

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreErrorSentinelMatching(t *testing.T) {
	notFound := NewDataError("get_event", "not found", nil).WithCode("NOT_FOUND")
	assert.True(t, errors.Is(notFound, ErrNotFound))
	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsUniqueViolation(notFound))

	unique := NewConstraintError("insert_event", "duplicate", nil).WithCode("UNIQUE_VIOLATION")
	assert.True(t, errors.Is(unique, ErrUniqueViolation))
	assert.True(t, IsUniqueViolation(unique))

	fk := NewConstraintError("insert_snapshot", "bad reference", nil).WithCode("FOREIGN_KEY_VIOLATION")
	assert.True(t, errors.Is(fk, ErrForeignKeyViolation))

	closed := NewTransactionError("commit", "closed", nil).WithCode("TRANSACTION_CLOSED")
	assert.True(t, errors.Is(closed, ErrTransactionClosed))
}

func TestStoreErrorWrapping(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := NewQueryError("list_balances", "query failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "list_balances")
	assert.Contains(t, err.Error(), "underlying")
}

func TestRetryableDerivation(t *testing.T) {
	assert.True(t, NewConnectionError("open", "refused", nil).Retryable)
	assert.False(t, NewDataError("get", "not found", nil).Retryable)
	assert.False(t, NewConstraintError("insert", "duplicate", nil).Retryable)

	assert.True(t, NewTransactionError("commit", "aborted", fmt.Errorf("deadlock detected")).Retryable)
	assert.True(t, NewTransactionError("commit", "aborted", fmt.Errorf("could not serialize access")).Retryable)
	assert.False(t, NewTransactionError("commit", "aborted", fmt.Errorf("syntax error")).Retryable)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewConnectionError("open", "refused", nil)))
	assert.False(t, IsRetryable(NewDataError("get", "not found", nil)))

	// non-StoreError falls back to message patterns
	assert.True(t, IsRetryable(fmt.Errorf("dial tcp: connection refused")))
	assert.True(t, IsRetryable(fmt.Errorf("pq: deadlock detected")))
	assert.False(t, IsRetryable(fmt.Errorf("some permanent failure")))
	assert.False(t, IsRetryable(nil))
}
