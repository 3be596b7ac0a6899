// Package ledgerdb defines the relational storage contract of the token
// ledger: entities, repository interfaces and transaction management. The
// concrete implementation lives in the postgres subpackage.
package ledgerdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event is an observed substrate event, stored once per distinct substrate
// id. Its presence means the request has been handled to finality; the
// engine uses it as the idempotency key.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	NostrID   string          `json:"nostr_id"` // substrate event id, unique
	Signature string          `json:"signature"`
	Signer    string          `json:"signer"`
	Author    string          `json:"author"`
	Kind      int             `json:"kind"`
	Payload   json.RawMessage `json:"payload"` // parsed request content; empty object on parse failure
	CreatedAt time.Time       `json:"created_at"`
}

// Token is a provisioned token. Static; the engine never mutates it.
type Token struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"` // unique, human-readable
}

// TransactionType is one of the three provisioned transaction variants.
type TransactionType struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
}

// Transaction records one successfully committed request.
type Transaction struct {
	ID      uuid.UUID       `json:"id"`
	TypeID  uuid.UUID       `json:"transaction_type_id"`
	EventID uuid.UUID       `json:"event_id"` // 1:1 with the originating Event
	Payload json.RawMessage `json:"payload"`
}

// Balance is the current holding of one token by one account, keyed uniquely
// by (account, token). Amount is read through the snapshot the balance
// points at.
type Balance struct {
	ID         uuid.UUID       `json:"id"`
	AccountID  string          `json:"account_id"` // substrate public identity
	TokenID    uuid.UUID       `json:"token_id"`
	SnapshotID uuid.UUID       `json:"snapshot_id"` // latest BalanceSnapshot
	EventID    uuid.UUID       `json:"event_id"`    // most recent Event that moved it
	Amount     decimal.Decimal `json:"amount"`      // amount of the current snapshot
}

// BalanceSnapshot is one immutable entry of a balance's append-only history.
type BalanceSnapshot struct {
	ID             uuid.UUID       `json:"id"`
	PrevSnapshotID *uuid.UUID      `json:"prev_snapshot_id"` // nil iff first snapshot
	Amount         decimal.Decimal `json:"amount"`
	Delta          decimal.Decimal `json:"delta"` // +credit, -debit, creation amount when first
	TransactionID  uuid.UUID       `json:"transaction_id"`
	EventID        uuid.UUID       `json:"event_id"`
	TokenID        uuid.UUID       `json:"token_id"`
	AccountID      string          `json:"account_id"`
}

// EventRepository stores observed events.
type EventRepository interface {
	Exists(ctx context.Context, nostrID string) (bool, error)
	Insert(ctx context.Context, event *Event) error
	GetByNostrID(ctx context.Context, nostrID string) (*Event, error)
}

// TokenRepository reads and provisions tokens.
type TokenRepository interface {
	GetByNames(ctx context.Context, names []string) (map[string]Token, error)
	Insert(ctx context.Context, token *Token) error
	List(ctx context.Context) ([]Token, error)
}

// TransactionTypeRepository reads and seeds the static transaction types.
type TransactionTypeRepository interface {
	GetByDescription(ctx context.Context, description string) (*TransactionType, error)
	Seed(ctx context.Context, descriptions []string) error
}

// TransactionRepository stores committed transactions.
type TransactionRepository interface {
	Insert(ctx context.Context, tx *Transaction) error
	GetByEventID(ctx context.Context, eventID uuid.UUID) (*Transaction, error)
}

// BalanceRepository reads and mutates balances and their snapshot chains.
// Mutating methods are meant to run inside a TransactionContext.
type BalanceRepository interface {
	// List returns the balances the account holds in the given tokens,
	// with Amount populated from the current snapshot. An empty tokenIDs
	// slice returns every balance of the account.
	List(ctx context.Context, account string, tokenIDs []uuid.UUID) ([]Balance, error)

	// ListSufficient returns only the account's balances whose current
	// amount covers the required amount for that token.
	ListSufficient(ctx context.Context, account string, required map[uuid.UUID]decimal.Decimal) ([]Balance, error)

	// ApplyDelta appends a snapshot with the given signed delta to the
	// balance's chain and repoints the balance at it. The caller is
	// responsible for sign and sufficiency checks.
	ApplyDelta(ctx context.Context, balance *Balance, delta decimal.Decimal, txID, eventID uuid.UUID) (*BalanceSnapshot, error)

	// CreateWithSnapshot creates a fresh balance together with its first
	// snapshot in a single atomic statement, since the two rows reference
	// each other.
	CreateWithSnapshot(ctx context.Context, account string, tokenID uuid.UUID, amount decimal.Decimal, txID, eventID uuid.UUID) (*Balance, error)
}

// TransactionContext is a database transaction with repository access.
type TransactionContext interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	Events() EventRepository
	Tokens() TokenRepository
	TransactionTypes() TransactionTypeRepository
	Transactions() TransactionRepository
	Balances() BalanceRepository
}

// RepositoryManager provides repository access and transaction management
// over one database connection pool.
type RepositoryManager interface {
	Events() EventRepository
	Tokens() TokenRepository
	TransactionTypes() TransactionTypeRepository
	Transactions() TransactionRepository
	Balances() BalanceRepository

	Open(ctx context.Context) error
	Close(ctx context.Context) error
	Ping(ctx context.Context) error

	// WithTransaction runs fn inside a serializable transaction, rolling
	// back on error or panic and committing otherwise.
	WithTransaction(ctx context.Context, fn func(TransactionContext) error) error
}
