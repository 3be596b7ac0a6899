// Package postgres implements the ledgerdb storage contract over PostgreSQL
// using database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/relaymint/tokend/internal/storage/ledgerdb"
)

// RepositoryManager implements ledgerdb.RepositoryManager for PostgreSQL.
type RepositoryManager struct {
	db     *sql.DB
	config *ledgerdb.Config

	eventRepo       *EventRepository
	tokenRepo       *TokenRepository
	txTypeRepo      *TransactionTypeRepository
	transactionRepo *TransactionRepository
	balanceRepo     *BalanceRepository
}

// NewRepositoryManager creates a new PostgreSQL repository manager.
func NewRepositoryManager(config *ledgerdb.Config) (*RepositoryManager, error) {
	if err := config.Validate(); err != nil {
		return nil, ledgerdb.NewConfigurationError("new_repository_manager", "invalid configuration", err)
	}

	return &RepositoryManager{config: config}, nil
}

func (rm *RepositoryManager) Open(ctx context.Context) error {
	sqlDB, err := sql.Open("postgres", rm.config.DSN)
	if err != nil {
		return ledgerdb.NewConnectionError("open", "failed to open database connection", err)
	}

	sqlDB.SetMaxOpenConns(rm.config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(rm.config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(rm.config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(rm.config.ConnMaxIdleTime)

	ctxTimeout, cancel := context.WithTimeout(ctx, rm.config.DefaultTimeout)
	defer cancel()

	if err := sqlDB.PingContext(ctxTimeout); err != nil {
		sqlDB.Close()
		return ledgerdb.NewConnectionError("open", "failed to ping database", err)
	}

	rm.db = sqlDB

	if err := rm.initSchema(ctx); err != nil {
		rm.db.Close()
		rm.db = nil
		return ledgerdb.NewSchemaError("open", "failed to initialize schema", err)
	}

	rm.eventRepo = NewEventRepository(rm.db)
	rm.tokenRepo = NewTokenRepository(rm.db)
	rm.txTypeRepo = NewTransactionTypeRepository(rm.db)
	rm.transactionRepo = NewTransactionRepository(rm.db)
	rm.balanceRepo = NewBalanceRepository(rm.db)

	return nil
}

func (rm *RepositoryManager) Close(ctx context.Context) error {
	if rm.db == nil {
		return nil
	}

	err := rm.db.Close()
	rm.db = nil

	rm.eventRepo = nil
	rm.tokenRepo = nil
	rm.txTypeRepo = nil
	rm.transactionRepo = nil
	rm.balanceRepo = nil

	if err != nil {
		return ledgerdb.NewConnectionError("close", "failed to close database connection", err)
	}

	return nil
}

func (rm *RepositoryManager) Ping(ctx context.Context) error {
	if rm.db == nil {
		return ledgerdb.ErrDatabaseClosed
	}
	if err := rm.db.PingContext(ctx); err != nil {
		return ledgerdb.NewConnectionError("ping", "database ping failed", err)
	}
	return nil
}

func (rm *RepositoryManager) Events() ledgerdb.EventRepository { return rm.eventRepo }

func (rm *RepositoryManager) Tokens() ledgerdb.TokenRepository { return rm.tokenRepo }

func (rm *RepositoryManager) TransactionTypes() ledgerdb.TransactionTypeRepository {
	return rm.txTypeRepo
}

func (rm *RepositoryManager) Transactions() ledgerdb.TransactionRepository {
	return rm.transactionRepo
}

func (rm *RepositoryManager) Balances() ledgerdb.BalanceRepository { return rm.balanceRepo }

// WithTransaction runs fn inside a serializable transaction. The strictest
// isolation level is required so that concurrent balance mutations of the
// same account either serialize or fail with a retryable error.
func (rm *RepositoryManager) WithTransaction(ctx context.Context, fn func(ledgerdb.TransactionContext) error) error {
	if rm.db == nil {
		return ledgerdb.ErrDatabaseClosed
	}

	tx, err := rm.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return wrapError("begin", "failed to begin transaction", err)
	}

	tc := NewTransactionContext(tx)

	defer func() {
		if p := recover(); p != nil {
			tc.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tc); err != nil {
		tc.Rollback(ctx)
		return err
	}

	return tc.Commit(ctx)
}

// initSchema creates the ledger schema when absent. Runs on every Open;
// every statement is idempotent.
func (rm *RepositoryManager) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id UUID PRIMARY KEY,
			nostr_id TEXT UNIQUE NOT NULL,
			signature TEXT NOT NULL,
			signer TEXT NOT NULL,
			author TEXT NOT NULL,
			kind INTEGER NOT NULL,
			payload JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS tokens (
			id UUID PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS transaction_types (
			id UUID PRIMARY KEY,
			description TEXT UNIQUE NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS transactions (
			id UUID PRIMARY KEY,
			transaction_type_id UUID NOT NULL REFERENCES transaction_types(id),
			event_id UUID UNIQUE NOT NULL REFERENCES events(id),
			payload JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS balance_snapshots (
			id UUID PRIMARY KEY,
			prev_snapshot_id UUID REFERENCES balance_snapshots(id),
			amount NUMERIC NOT NULL CHECK (amount >= 0),
			delta NUMERIC NOT NULL,
			transaction_id UUID NOT NULL REFERENCES transactions(id),
			event_id UUID NOT NULL REFERENCES events(id),
			token_id UUID NOT NULL REFERENCES tokens(id),
			account_id TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS balances (
			id UUID PRIMARY KEY,
			account_id TEXT NOT NULL,
			token_id UUID NOT NULL REFERENCES tokens(id),
			snapshot_id UUID NOT NULL REFERENCES balance_snapshots(id),
			event_id UUID NOT NULL REFERENCES events(id),
			UNIQUE (account_id, token_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_balances_account ON balances(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_balance_snapshots_account_token ON balance_snapshots(account_id, token_id)`,
		`CREATE INDEX IF NOT EXISTS idx_balance_snapshots_transaction ON balance_snapshots(transaction_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_event ON transactions(event_id)`,
	}

	for _, query := range queries {
		if _, err := rm.db.ExecContext(ctx, query); err != nil {
			return ledgerdb.NewSchemaError("init_schema", "failed to execute schema query", err)
		}
	}

	return nil
}
