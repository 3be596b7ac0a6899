package postgres

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"

	"github.com/relaymint/tokend/internal/storage/ledgerdb"
)

// wrapError classifies a driver error into the ledgerdb error taxonomy.
// Serialization failures and deadlocks are marked retryable so the engine's
// retry controller re-runs the request; constraint violations carry codes
// that errors.Is can match against the ledgerdb sentinels.
func wrapError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ledgerdb.NewDataError(operation, message, err).WithCode("NOT_FOUND")
	}
	if errors.Is(err, sql.ErrTxDone) {
		return ledgerdb.NewTransactionError(operation, message, err).WithCode("TRANSACTION_CLOSED")
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return ledgerdb.NewConstraintError(operation, message, err).WithCode("UNIQUE_VIOLATION")
		case "23503": // foreign_key_violation
			return ledgerdb.NewConstraintError(operation, message, err).WithCode("FOREIGN_KEY_VIOLATION")
		case "23514": // check_violation
			return ledgerdb.NewConstraintError(operation, message, err).WithCode("CHECK_VIOLATION")
		case "40001", "40P01": // serialization_failure, deadlock_detected
			se := ledgerdb.NewTransactionError(operation, message, err)
			se.Retryable = true
			return se.WithCode(string(pqErr.Code))
		}
		if strings.HasPrefix(string(pqErr.Code), "08") { // connection exceptions
			return ledgerdb.NewConnectionError(operation, message, err)
		}
	}

	return ledgerdb.NewQueryError(operation, message, err)
}
