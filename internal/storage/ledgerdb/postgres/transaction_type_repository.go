package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/relaymint/tokend/internal/storage/ledgerdb"
)

// TransactionTypeRepository implements ledgerdb.TransactionTypeRepository
// for PostgreSQL.
type TransactionTypeRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewTransactionTypeRepository creates a new PostgreSQL transaction type repository.
func NewTransactionTypeRepository(db *sql.DB) *TransactionTypeRepository {
	return &TransactionTypeRepository{db: db}
}

// NewTransactionTypeRepositoryWithTx creates a transaction type repository
// bound to a transaction.
func NewTransactionTypeRepositoryWithTx(tx *sql.Tx) *TransactionTypeRepository {
	return &TransactionTypeRepository{tx: tx}
}

func (r *TransactionTypeRepository) getExecutor() executor {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *TransactionTypeRepository) GetByDescription(ctx context.Context, description string) (*ledgerdb.TransactionType, error) {
	var tt ledgerdb.TransactionType
	err := r.getExecutor().QueryRowContext(ctx,
		"SELECT id, description FROM transaction_types WHERE description = $1", description).
		Scan(&tt.ID, &tt.Description)
	if err != nil {
		return nil, wrapError("get_transaction_type", "failed to query transaction type", err)
	}
	return &tt, nil
}

// Seed inserts the given transaction type descriptions when missing.
// Idempotent; safe to run at every startup.
func (r *TransactionTypeRepository) Seed(ctx context.Context, descriptions []string) error {
	for _, description := range descriptions {
		_, err := r.getExecutor().ExecContext(ctx,
			`INSERT INTO transaction_types (id, description) VALUES ($1, $2)
			 ON CONFLICT (description) DO NOTHING`,
			uuid.New(), description)
		if err != nil {
			return wrapError("seed_transaction_types", "failed to seed transaction type", err)
		}
	}
	return nil
}
