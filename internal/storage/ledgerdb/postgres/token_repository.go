package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/relaymint/tokend/internal/storage/ledgerdb"
)

// TokenRepository implements ledgerdb.TokenRepository for PostgreSQL.
type TokenRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewTokenRepository creates a new PostgreSQL token repository.
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// NewTokenRepositoryWithTx creates a token repository bound to a transaction.
func NewTokenRepositoryWithTx(tx *sql.Tx) *TokenRepository {
	return &TokenRepository{tx: tx}
}

func (r *TokenRepository) getExecutor() executor {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *TokenRepository) GetByNames(ctx context.Context, names []string) (map[string]ledgerdb.Token, error) {
	result := make(map[string]ledgerdb.Token, len(names))
	if len(names) == 0 {
		return result, nil
	}

	rows, err := r.getExecutor().QueryContext(ctx,
		"SELECT id, name FROM tokens WHERE name = ANY($1)", pq.Array(names))
	if err != nil {
		return nil, wrapError("get_tokens_by_names", "failed to query tokens", err)
	}
	defer rows.Close()

	for rows.Next() {
		var token ledgerdb.Token
		if err := rows.Scan(&token.ID, &token.Name); err != nil {
			return nil, wrapError("get_tokens_by_names", "failed to scan row", err)
		}
		result[token.Name] = token
	}

	if err := rows.Err(); err != nil {
		return nil, wrapError("get_tokens_by_names", "error iterating rows", err)
	}

	return result, nil
}

func (r *TokenRepository) Insert(ctx context.Context, token *ledgerdb.Token) error {
	_, err := r.getExecutor().ExecContext(ctx,
		"INSERT INTO tokens (id, name) VALUES ($1, $2)", token.ID, token.Name)
	if err != nil {
		return wrapError("insert_token", "failed to insert token", err)
	}
	return nil
}

func (r *TokenRepository) List(ctx context.Context) ([]ledgerdb.Token, error) {
	rows, err := r.getExecutor().QueryContext(ctx, "SELECT id, name FROM tokens ORDER BY name")
	if err != nil {
		return nil, wrapError("list_tokens", "failed to query tokens", err)
	}
	defer rows.Close()

	var tokens []ledgerdb.Token
	for rows.Next() {
		var token ledgerdb.Token
		if err := rows.Scan(&token.ID, &token.Name); err != nil {
			return nil, wrapError("list_tokens", "failed to scan row", err)
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapError("list_tokens", "error iterating rows", err)
	}

	return tokens, nil
}
