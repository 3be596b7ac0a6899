package postgres

import (
	"context"
	"database/sql"

	"github.com/relaymint/tokend/internal/storage/ledgerdb"
)

// TransactionContext implements ledgerdb.TransactionContext for PostgreSQL.
type TransactionContext struct {
	tx *sql.Tx

	eventRepo       *EventRepository
	tokenRepo       *TokenRepository
	txTypeRepo      *TransactionTypeRepository
	transactionRepo *TransactionRepository
	balanceRepo     *BalanceRepository
}

// NewTransactionContext creates a transaction context bound to tx.
func NewTransactionContext(tx *sql.Tx) *TransactionContext {
	return &TransactionContext{
		tx:              tx,
		eventRepo:       NewEventRepositoryWithTx(tx),
		tokenRepo:       NewTokenRepositoryWithTx(tx),
		txTypeRepo:      NewTransactionTypeRepositoryWithTx(tx),
		transactionRepo: NewTransactionRepositoryWithTx(tx),
		balanceRepo:     NewBalanceRepositoryWithTx(tx),
	}
}

func (tc *TransactionContext) Commit(ctx context.Context) error {
	if tc.tx == nil {
		return ledgerdb.ErrTransactionClosed
	}

	err := tc.tx.Commit()
	tc.tx = nil

	if err != nil {
		return wrapError("commit", "failed to commit transaction", err)
	}

	return nil
}

func (tc *TransactionContext) Rollback(ctx context.Context) error {
	if tc.tx == nil {
		return nil // Already rolled back or committed
	}

	err := tc.tx.Rollback()
	tc.tx = nil

	if err != nil {
		return wrapError("rollback", "failed to rollback transaction", err)
	}

	return nil
}

func (tc *TransactionContext) Events() ledgerdb.EventRepository { return tc.eventRepo }

func (tc *TransactionContext) Tokens() ledgerdb.TokenRepository { return tc.tokenRepo }

func (tc *TransactionContext) TransactionTypes() ledgerdb.TransactionTypeRepository {
	return tc.txTypeRepo
}

func (tc *TransactionContext) Transactions() ledgerdb.TransactionRepository {
	return tc.transactionRepo
}

func (tc *TransactionContext) Balances() ledgerdb.BalanceRepository { return tc.balanceRepo }
