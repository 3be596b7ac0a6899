package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/relaymint/tokend/internal/storage/ledgerdb"
)

// TransactionRepository implements ledgerdb.TransactionRepository for
// PostgreSQL.
type TransactionRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewTransactionRepository creates a new PostgreSQL transaction repository.
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// NewTransactionRepositoryWithTx creates a transaction repository bound to a
// transaction.
func NewTransactionRepositoryWithTx(tx *sql.Tx) *TransactionRepository {
	return &TransactionRepository{tx: tx}
}

func (r *TransactionRepository) getExecutor() executor {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *TransactionRepository) Insert(ctx context.Context, tx *ledgerdb.Transaction) error {
	payload := tx.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	query := `INSERT INTO transactions (id, transaction_type_id, event_id, payload)
			  VALUES ($1, $2, $3, $4)`

	_, err := r.getExecutor().ExecContext(ctx, query, tx.ID, tx.TypeID, tx.EventID, []byte(payload))
	if err != nil {
		return wrapError("insert_transaction", "failed to insert transaction", err)
	}

	return nil
}

func (r *TransactionRepository) GetByEventID(ctx context.Context, eventID uuid.UUID) (*ledgerdb.Transaction, error) {
	query := `SELECT id, transaction_type_id, event_id, payload
			  FROM transactions WHERE event_id = $1`

	var tx ledgerdb.Transaction
	var payload []byte
	err := r.getExecutor().QueryRowContext(ctx, query, eventID).Scan(
		&tx.ID, &tx.TypeID, &tx.EventID, &payload)
	if err != nil {
		return nil, wrapError("get_transaction", "failed to query transaction", err)
	}
	tx.Payload = payload

	return &tx, nil
}
