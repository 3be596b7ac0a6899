package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/relaymint/tokend/internal/storage/ledgerdb"
)

// BalanceRepository implements ledgerdb.BalanceRepository for PostgreSQL.
// Amounts live on the snapshot a balance points at; every read joins the
// current snapshot and every write appends a new one.
type BalanceRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewBalanceRepository creates a new PostgreSQL balance repository.
func NewBalanceRepository(db *sql.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// NewBalanceRepositoryWithTx creates a balance repository bound to a
// transaction.
func NewBalanceRepositoryWithTx(tx *sql.Tx) *BalanceRepository {
	return &BalanceRepository{tx: tx}
}

func (r *BalanceRepository) getExecutor() executor {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

const balanceColumns = `b.id, b.account_id, b.token_id, b.snapshot_id, b.event_id, s.amount`

func (r *BalanceRepository) List(ctx context.Context, account string, tokenIDs []uuid.UUID) ([]ledgerdb.Balance, error) {
	query := `SELECT ` + balanceColumns + `
			  FROM balances b
			  JOIN balance_snapshots s ON s.id = b.snapshot_id
			  WHERE b.account_id = $1`
	args := []interface{}{account}

	if len(tokenIDs) > 0 {
		query += ` AND b.token_id = ANY($2::uuid[])`
		args = append(args, pq.Array(uuidStrings(tokenIDs)))
	}

	rows, err := r.getExecutor().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapError("list_balances", "failed to query balances", err)
	}
	defer rows.Close()

	return scanBalances(rows, "list_balances")
}

// ListSufficient returns only the balances whose current amount covers the
// required amount for that token. The caller compares cardinalities against
// the request to detect insufficient funds explicitly.
func (r *BalanceRepository) ListSufficient(ctx context.Context, account string, required map[uuid.UUID]decimal.Decimal) ([]ledgerdb.Balance, error) {
	if len(required) == 0 {
		return nil, nil
	}

	tokenIDs := make([]string, 0, len(required))
	amounts := make([]string, 0, len(required))
	for tokenID, amount := range required {
		tokenIDs = append(tokenIDs, tokenID.String())
		amounts = append(amounts, amount.String())
	}

	query := `SELECT ` + balanceColumns + `
			  FROM balances b
			  JOIN balance_snapshots s ON s.id = b.snapshot_id
			  JOIN unnest($2::uuid[], $3::numeric[]) AS req(token_id, amount)
			    ON req.token_id = b.token_id
			  WHERE b.account_id = $1 AND s.amount >= req.amount`

	rows, err := r.getExecutor().QueryContext(ctx, query, account, pq.Array(tokenIDs), pq.Array(amounts))
	if err != nil {
		return nil, wrapError("list_sufficient_balances", "failed to query balances", err)
	}
	defer rows.Close()

	return scanBalances(rows, "list_sufficient_balances")
}

// ApplyDelta appends a snapshot carrying the signed delta and repoints the
// balance at it. The balance struct is updated in place to reflect the new
// snapshot, amount and event.
func (r *BalanceRepository) ApplyDelta(ctx context.Context, balance *ledgerdb.Balance, delta decimal.Decimal, txID, eventID uuid.UUID) (*ledgerdb.BalanceSnapshot, error) {
	prev := balance.SnapshotID
	snapshot := &ledgerdb.BalanceSnapshot{
		ID:             uuid.New(),
		PrevSnapshotID: &prev,
		Amount:         balance.Amount.Add(delta),
		Delta:          delta,
		TransactionID:  txID,
		EventID:        eventID,
		TokenID:        balance.TokenID,
		AccountID:      balance.AccountID,
	}

	_, err := r.getExecutor().ExecContext(ctx,
		`INSERT INTO balance_snapshots
		 (id, prev_snapshot_id, amount, delta, transaction_id, event_id, token_id, account_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		snapshot.ID, snapshot.PrevSnapshotID, snapshot.Amount.String(), snapshot.Delta.String(),
		snapshot.TransactionID, snapshot.EventID, snapshot.TokenID, snapshot.AccountID)
	if err != nil {
		return nil, wrapError("apply_delta", "failed to insert balance snapshot", err)
	}

	result, err := r.getExecutor().ExecContext(ctx,
		`UPDATE balances SET snapshot_id = $1, event_id = $2 WHERE id = $3`,
		snapshot.ID, eventID, balance.ID)
	if err != nil {
		return nil, wrapError("apply_delta", "failed to update balance", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, ledgerdb.NewDataError("apply_delta", "balance row disappeared", sql.ErrNoRows).WithCode("NOT_FOUND")
	}

	balance.SnapshotID = snapshot.ID
	balance.EventID = eventID
	balance.Amount = snapshot.Amount

	return snapshot, nil
}

// CreateWithSnapshot creates a balance and its first snapshot in one
// compound statement. A single statement keeps the pair atomic and lets the
// balance reference the snapshot id produced by the CTE.
func (r *BalanceRepository) CreateWithSnapshot(ctx context.Context, account string, tokenID uuid.UUID, amount decimal.Decimal, txID, eventID uuid.UUID) (*ledgerdb.Balance, error) {
	snapshotID := uuid.New()
	balanceID := uuid.New()

	query := `WITH snap AS (
				INSERT INTO balance_snapshots
				(id, prev_snapshot_id, amount, delta, transaction_id, event_id, token_id, account_id)
				VALUES ($1, NULL, $2, $2, $3, $4, $5, $6)
				RETURNING id
			  )
			  INSERT INTO balances (id, account_id, token_id, snapshot_id, event_id)
			  SELECT $7, $6, $5, snap.id, $4 FROM snap`

	_, err := r.getExecutor().ExecContext(ctx, query,
		snapshotID, amount.String(), txID, eventID, tokenID, account, balanceID)
	if err != nil {
		return nil, wrapError("create_balance", "failed to create balance with first snapshot", err)
	}

	return &ledgerdb.Balance{
		ID:         balanceID,
		AccountID:  account,
		TokenID:    tokenID,
		SnapshotID: snapshotID,
		EventID:    eventID,
		Amount:     amount,
	}, nil
}

func scanBalances(rows *sql.Rows, operation string) ([]ledgerdb.Balance, error) {
	var balances []ledgerdb.Balance

	for rows.Next() {
		var b ledgerdb.Balance
		var amount string
		if err := rows.Scan(&b.ID, &b.AccountID, &b.TokenID, &b.SnapshotID, &b.EventID, &amount); err != nil {
			return nil, wrapError(operation, "failed to scan row", err)
		}
		parsed, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, ledgerdb.NewDataError(operation, "invalid amount in storage", err)
		}
		b.Amount = parsed
		balances = append(balances, b)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapError(operation, "error iterating rows", err)
	}

	return balances, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
