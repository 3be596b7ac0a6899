package postgres

import (
	"context"
	"database/sql"

	"github.com/relaymint/tokend/internal/storage/ledgerdb"
)

// EventRepository implements ledgerdb.EventRepository for PostgreSQL.
type EventRepository struct {
	db *sql.DB
	tx *sql.Tx // Optional transaction context
}

// NewEventRepository creates a new PostgreSQL event repository.
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// NewEventRepositoryWithTx creates an event repository bound to a transaction.
func NewEventRepositoryWithTx(tx *sql.Tx) *EventRepository {
	return &EventRepository{tx: tx}
}

func (r *EventRepository) getExecutor() executor {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *EventRepository) Exists(ctx context.Context, nostrID string) (bool, error) {
	var exists bool
	err := r.getExecutor().QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM events WHERE nostr_id = $1)", nostrID).Scan(&exists)
	if err != nil {
		return false, wrapError("event_exists", "failed to check event existence", err)
	}
	return exists, nil
}

func (r *EventRepository) Insert(ctx context.Context, event *ledgerdb.Event) error {
	payload := event.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	query := `INSERT INTO events (id, nostr_id, signature, signer, author, kind, payload)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.getExecutor().ExecContext(ctx, query,
		event.ID, event.NostrID, event.Signature, event.Signer, event.Author, event.Kind, []byte(payload))
	if err != nil {
		return wrapError("insert_event", "failed to insert event", err)
	}

	return nil
}

func (r *EventRepository) GetByNostrID(ctx context.Context, nostrID string) (*ledgerdb.Event, error) {
	query := `SELECT id, nostr_id, signature, signer, author, kind, payload, created_at
			  FROM events WHERE nostr_id = $1`

	var event ledgerdb.Event
	var payload []byte
	err := r.getExecutor().QueryRowContext(ctx, query, nostrID).Scan(
		&event.ID, &event.NostrID, &event.Signature, &event.Signer,
		&event.Author, &event.Kind, &payload, &event.CreatedAt)
	if err != nil {
		return nil, wrapError("get_event", "failed to query event", err)
	}
	event.Payload = payload

	return &event, nil
}
