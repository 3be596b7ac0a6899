package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relaymint/tokend/internal/core/engine"
	"github.com/relaymint/tokend/internal/nostr"
)

const ledgerKey = "c1edbe1fbe5e3d0a1c2c38cbbf53e24a6b8cb8daecb4444ed5b421deadbeef01"

type recordingProcessor struct {
	mu     sync.Mutex
	events []*nostr.Event
}

func (p *recordingProcessor) Process(_ context.Context, event *nostr.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingProcessor) processed() []*nostr.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*nostr.Event(nil), p.events...)
}

type fakeSubscriber struct {
	subID   string
	filters []nostr.Filter
	handler func(ctx context.Context, event *nostr.Event)
}

func (s *fakeSubscriber) Subscribe(subID string, filters []nostr.Filter, handler func(ctx context.Context, event *nostr.Event)) {
	s.subID = subID
	s.filters = filters
	s.handler = handler
}

func requestEvent(t *testing.T, variant engine.Variant) *nostr.Event {
	t.Helper()
	event := &nostr.Event{
		PubKey:    "b0b0000000000000000000000000000000000000000000000000000000000002",
		CreatedAt: time.Now().Unix(),
		Kind:      nostr.KindTransaction,
		Tags: nostr.Tags{
			{"p", ledgerKey},
			{"p", "d00d000000000000000000000000000000000000000000000000000000000003"},
			{"t", variant.StartTag()},
		},
		Content: `{"tokens":{"ECU":1}}`,
	}
	id, err := event.ComputeID()
	require.NoError(t, err)
	event.ID = id
	return event
}

func TestFilters(t *testing.T) {
	now := time.Now()
	filters := Filters(ledgerKey, now)
	require.Len(t, filters, 3)

	wantSince := now.Add(-FreshnessWindow).Unix()
	seen := make(map[string]bool)
	for _, f := range filters {
		assert.Equal(t, []int{nostr.KindTransaction}, f.Kinds)
		assert.Equal(t, []string{ledgerKey}, f.P)
		assert.Equal(t, wantSince, f.Since)
		require.Len(t, f.T, 1)
		seen[f.T[0]] = true
	}
	assert.True(t, seen["internal-transaction-start"])
	assert.True(t, seen["inbound-transaction-start"])
	assert.True(t, seen["outbound-transaction-start"])
}

func TestDispatchMatchingEvent(t *testing.T) {
	proc := &recordingProcessor{}
	in := New(proc, ledgerKey, zap.NewNop())
	sub := &fakeSubscriber{}
	in.Attach(context.Background(), sub)
	require.NotNil(t, sub.handler)

	event := requestEvent(t, engine.Internal)
	sub.handler(context.Background(), event)
	in.Drain()

	processed := proc.processed()
	require.Len(t, processed, 1)
	assert.Equal(t, event.ID, processed[0].ID)
}

func TestDropsNonMatchingDeliveries(t *testing.T) {
	proc := &recordingProcessor{}
	in := New(proc, ledgerKey, zap.NewNop())
	sub := &fakeSubscriber{}
	in.Attach(context.Background(), sub)

	// wrong recipient
	stranger := requestEvent(t, engine.Internal)
	stranger.Tags = nostr.Tags{{"p", "someone-else"}, {"t", "internal-transaction-start"}}
	id, err := stranger.ComputeID()
	require.NoError(t, err)
	stranger.ID = id
	sub.handler(context.Background(), stranger)

	// stale event beyond the freshness window
	stale := requestEvent(t, engine.Internal)
	stale.CreatedAt = time.Now().Add(-2 * FreshnessWindow).Unix()
	id, err = stale.ComputeID()
	require.NoError(t, err)
	stale.ID = id
	sub.handler(context.Background(), stale)

	// tampered id
	tampered := requestEvent(t, engine.Internal)
	tampered.ID = "0000000000000000000000000000000000000000000000000000000000000000"
	sub.handler(context.Background(), tampered)

	in.Drain()
	assert.Empty(t, proc.processed())
}
