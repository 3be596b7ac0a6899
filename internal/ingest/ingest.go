// Package ingest adapts the relay subscription to the transaction engine:
// it declares the request filters, screens deliveries against them and runs
// each accepted request as an independent unit of work.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/relaymint/tokend/internal/core/engine"
	"github.com/relaymint/tokend/internal/nostr"
)

// FreshnessWindow is how far back the subscription reaches. Events older
// than this at subscription time are never delivered.
const FreshnessWindow = 86000 * time.Second

// seenCacheSize bounds the redelivery fast path. The engine's idempotency
// check remains the durable guard.
const seenCacheSize = 4096

// Processor handles one request event to a terminal state.
type Processor interface {
	Process(ctx context.Context, event *nostr.Event)
}

// Subscriber accepts the ingestor's subscription.
type Subscriber interface {
	Subscribe(subID string, filters []nostr.Filter, handler func(ctx context.Context, event *nostr.Event))
}

// Ingestor screens relay deliveries and dispatches requests to the engine.
type Ingestor struct {
	engine  Processor
	log     *zap.Logger
	filters []nostr.Filter
	seen    *lru.Cache[string, struct{}]

	// baseCtx outlives individual relay sessions so a reconnect does not
	// cancel requests already in flight.
	baseCtx context.Context

	wg sync.WaitGroup
}

// New creates an ingestor subscribing to the three request variants
// addressed to the given ledger identity.
func New(proc Processor, ledgerPubKey string, log *zap.Logger) *Ingestor {
	seen, _ := lru.New[string, struct{}](seenCacheSize)
	return &Ingestor{
		engine:  proc,
		log:     log,
		filters: Filters(ledgerPubKey, time.Now()),
		seen:    seen,
	}
}

// Filters returns one filter per transaction variant: kind 1112 requests
// addressed to the ledger, typed with the variant's start tag, no older than
// the freshness window.
func Filters(ledgerPubKey string, now time.Time) []nostr.Filter {
	since := now.Add(-FreshnessWindow).Unix()

	filters := make([]nostr.Filter, 0, len(engine.Variants()))
	for _, v := range engine.Variants() {
		filters = append(filters, nostr.Filter{
			Kinds: []int{nostr.KindTransaction},
			P:     []string{ledgerPubKey},
			T:     []string{v.StartTag()},
			Since: since,
		})
	}
	return filters
}

// Attach registers the ingestor's subscription on the relay pool. Units of
// work run under ctx, not under the delivering relay session.
func (in *Ingestor) Attach(ctx context.Context, sub Subscriber) {
	in.baseCtx = ctx
	sub.Subscribe("tokend-"+uuid.NewString(), in.filters, in.handle)
}

// Drain waits for in-flight units of work to reach a terminal state.
func (in *Ingestor) Drain() {
	in.wg.Wait()
}

// handle screens one delivery and runs it as its own unit of work. Relays
// are not trusted to apply filters faithfully, so the filters are re-checked
// locally.
func (in *Ingestor) handle(_ context.Context, event *nostr.Event) {
	if !in.matches(event) {
		in.log.Debug("dropping delivery outside subscription",
			zap.String("event_id", event.ID))
		return
	}

	if ok, err := event.CheckID(); err != nil || !ok {
		in.log.Warn("dropping event with mismatched id",
			zap.String("event_id", event.ID), zap.Error(err))
		return
	}

	if _, dup, _ := in.seen.PeekOrAdd(event.ID, struct{}{}); dup {
		return
	}

	in.wg.Add(1)
	go func() {
		defer in.wg.Done()
		in.engine.Process(in.baseCtx, event)
	}()
}

func (in *Ingestor) matches(event *nostr.Event) bool {
	for _, f := range in.filters {
		if f.Matches(event) {
			return true
		}
	}
	return false
}
