package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relaymint/tokend/internal/nostr"
	"github.com/relaymint/tokend/internal/storage/ledgerdb"
)

// Engine drives every request from delivery to a terminal outcome: validate,
// mutate inside a serializable transaction, publish, and re-announce after a
// settling delay.
type Engine struct {
	store   ledgerdb.RepositoryManager
	outbox  Outbox
	cfg     Config
	log     *zap.Logger
	metrics *Metrics

	wg     sync.WaitGroup
	closed chan struct{}
}

// New creates an engine. Zero Config fields fall back to defaults.
func New(store ledgerdb.RepositoryManager, outbox Outbox, cfg Config, log *zap.Logger, metrics *Metrics) *Engine {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.RepublishInterval <= 0 {
		cfg.RepublishInterval = DefaultRepublishInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	return &Engine{
		store:   store,
		outbox:  outbox,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		closed:  make(chan struct{}),
	}
}

// Close stops deferred re-announcements and waits for in-flight ones.
func (e *Engine) Close() {
	close(e.closed)
	e.wg.Wait()
}

// txResult is the committed effect of one request.
type txResult struct {
	req      *TxRequest
	affected []AffectedBalance
}

// Process handles one delivered request event to a terminal state. It never
// returns an error: every failure mode ends in a publication, a silent drop,
// or an exhausted-retries error event.
func (e *Engine) Process(ctx context.Context, event *nostr.Event) {
	variant, ok := VariantFromStartTag(event.Tags.Type())
	if !ok {
		e.log.Debug("dropping event without a known start tag",
			zap.String("event_id", event.ID),
			zap.String("type", event.Tags.Type()))
		return
	}

	log := e.log.With(
		zap.String("event_id", event.ID),
		zap.String("variant", variant.String()))

	start := time.Now()
	for attempt := 1; ; attempt++ {
		result, err := e.attempt(ctx, event, variant)
		if err == nil {
			e.metrics.observe(variant, "ok", time.Since(start))
			log.Info("transaction committed",
				zap.Int("attempt", attempt),
				zap.Int("balances", len(result.affected)))
			e.publishSuccess(ctx, result)
			return
		}

		if errors.Is(err, ErrDuplicate) {
			e.metrics.observe(variant, "duplicate", time.Since(start))
			log.Debug("duplicate request dropped")
			return
		}

		if rej, ok := AsRejection(err); ok {
			e.metrics.observe(variant, "rejected", time.Since(start))
			log.Info("request rejected", zap.String("reason", rej.Reason))
			e.finalize(ctx, event, variant, rej.Reason)
			return
		}

		if attempt >= e.cfg.MaxRetries || !isTransient(err) {
			e.metrics.observe(variant, "failed", time.Since(start))
			log.Error("request failed terminally",
				zap.Int("attempt", attempt), zap.Error(err))
			e.finalize(ctx, event, variant, ReasonNetworkError)
			return
		}

		e.metrics.retries.Inc()
		log.Warn("transient fault, retrying",
			zap.Int("attempt", attempt), zap.Error(err))

		select {
		case <-ctx.Done():
			log.Warn("processing cancelled", zap.Error(ctx.Err()))
			return
		case <-time.After(retryBackoff(e.cfg.RetryBackoff, attempt)):
		}
	}
}

// attempt runs one full pass: pre-validation, then the variant body inside a
// serializable transaction. The Event row is inserted in the same transaction
// as the mutation, so a retried attempt starts from a clean slate.
func (e *Engine) attempt(ctx context.Context, event *nostr.Event, variant Variant) (*txResult, error) {
	req, err := e.validate(ctx, event, variant)
	if err != nil {
		return nil, err
	}

	if variant == Inbound && req.Author != e.cfg.MinterPubKey {
		return nil, ErrUnauthorizedMint
	}
	if variant == Outbound && req.Author != e.cfg.MinterPubKey {
		return nil, ErrUnauthorizedBurn
	}

	result := &txResult{req: req}
	err = e.store.WithTransaction(ctx, func(tc ledgerdb.TransactionContext) error {
		eventRow := newEventRow(event, req.Author, req.Payload)
		if err := tc.Events().Insert(ctx, eventRow); err != nil {
			return err
		}

		txRow := &ledgerdb.Transaction{
			ID:      uuid.New(),
			TypeID:  req.TypeID,
			EventID: eventRow.ID,
			Payload: req.Payload,
		}
		if err := tc.Transactions().Insert(ctx, txRow); err != nil {
			return err
		}

		switch variant {
		case Internal:
			debited, err := debitAll(ctx, tc, req, txRow.ID, eventRow.ID)
			if err != nil {
				return err
			}
			credited, err := creditAll(ctx, tc, req, txRow.ID, eventRow.ID)
			if err != nil {
				return err
			}
			result.affected = append(debited, credited...)
		case Inbound:
			credited, err := creditAll(ctx, tc, req, txRow.ID, eventRow.ID)
			if err != nil {
				return err
			}
			result.affected = credited
		case Outbound:
			debited, err := debitAll(ctx, tc, req, txRow.ID, eventRow.ID)
			if err != nil {
				return err
			}
			result.affected = debited
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// finalize records a terminal non-success outcome: persist the Event row as
// the durable footprint, then publish the error outcome. Insertion is best
// effort; a unique violation means a concurrent pass already persisted it.
func (e *Engine) finalize(ctx context.Context, event *nostr.Event, variant Variant, reason string) {
	author, _ := nostr.Author(event)

	var payload json.RawMessage
	if content, err := ParseContent(event.Content); err == nil {
		if p, err := content.MarshalJSON(); err == nil {
			payload = p
		}
	}

	row := newEventRow(event, author, payload)
	if err := e.store.Events().Insert(ctx, row); err != nil && !ledgerdb.IsUniqueViolation(err) {
		e.log.Error("failed to persist rejected event",
			zap.String("event_id", event.ID), zap.Error(err))
	}

	e.outbox.Publish(ctx, e.errorEvent(event, variant, reason))
}

func newEventRow(event *nostr.Event, author string, payload json.RawMessage) *ledgerdb.Event {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	return &ledgerdb.Event{
		ID:        uuid.New(),
		NostrID:   event.ID,
		Signature: event.Sig,
		Signer:    event.PubKey,
		Author:    author,
		Kind:      event.Kind,
		Payload:   payload,
		CreatedAt: time.Unix(event.CreatedAt, 0).UTC(),
	}
}
