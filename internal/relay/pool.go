// Package relay maintains the ledger's websocket connections to the
// substrate relays: a shared subscription fanned out to every relay, with
// inbound events deduplicated across them, and a fire-and-forget outbox for
// outgoing events.
package relay

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/relaymint/tokend/internal/nostr"
)

// seenCacheSize bounds the cross-relay dedup window.
const seenCacheSize = 4096

// Handler consumes one deduplicated inbound event.
type Handler func(ctx context.Context, event *nostr.Event)

// Config configures a relay pool.
type Config struct {
	// URLs of the relays to maintain connections to.
	URLs []string

	// PrivateKey is the hex-encoded signing key for outgoing events. When
	// empty, events are published unsigned; acceptance is then up to the
	// relay.
	PrivateKey string
}

// Pool fans one subscription out to every configured relay and fans inbound
// events in, deduplicated by event id. It is the engine's Outbox.
type Pool struct {
	cfg     Config
	log     *zap.Logger
	clients []*client
	seen    *lru.Cache[string, struct{}]

	mu      sync.RWMutex
	subID   string
	filters []nostr.Filter
	handler Handler
}

// NewPool creates a pool for the given relays. Connections are established
// by Run.
func NewPool(cfg Config, log *zap.Logger) (*Pool, error) {
	seen, err := lru.New[string, struct{}](seenCacheSize)
	if err != nil {
		return nil, err
	}

	p := &Pool{
		cfg:  cfg,
		log:  log,
		seen: seen,
	}
	for _, url := range cfg.URLs {
		p.clients = append(p.clients, newClient(url, p, log))
	}

	return p, nil
}

// Subscribe sets the subscription replayed on every relay connection. Must
// be called before Run.
func (p *Pool) Subscribe(subID string, filters []nostr.Filter, handler func(ctx context.Context, event *nostr.Event)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subID = subID
	p.filters = filters
	p.handler = handler
}

// Run maintains every relay connection until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range p.clients {
		c := c
		g.Go(func() error {
			c.run(ctx)
			return nil
		})
	}
	return g.Wait()
}

// Publish signs the event when a key is configured and queues it on every
// relay connection. Errors are logged, never returned: publication is best
// effort and the deferred re-announcement covers stragglers.
func (p *Pool) Publish(ctx context.Context, event *nostr.Event) {
	if p.cfg.PrivateKey != "" {
		if err := event.Sign(p.cfg.PrivateKey); err != nil {
			p.log.Error("failed to sign outgoing event", zap.Error(err))
			return
		}
	} else if event.ID == "" {
		id, err := event.ComputeID()
		if err != nil {
			p.log.Error("failed to compute outgoing event id", zap.Error(err))
			return
		}
		event.ID = id
	}

	frame, err := nostr.EventFrame(event)
	if err != nil {
		p.log.Error("failed to encode outgoing event", zap.Error(err))
		return
	}

	for _, c := range p.clients {
		c.enqueue(frame)
	}
}

// Connected reports how many relays currently hold a live connection.
func (p *Pool) Connected() int {
	n := 0
	for _, c := range p.clients {
		if c.isConnected() {
			n++
		}
	}
	return n
}

// subscription returns the current subscription for connection replay.
func (p *Pool) subscription() (string, []nostr.Filter) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.subID, p.filters
}

// dispatch hands one inbound event to the handler unless another relay
// already delivered it.
func (p *Pool) dispatch(ctx context.Context, event *nostr.Event) {
	if event == nil || event.ID == "" {
		return
	}
	if _, dup, _ := p.seen.PeekOrAdd(event.ID, struct{}{}); dup {
		return
	}

	p.mu.RLock()
	handler := p.handler
	p.mu.RUnlock()
	if handler != nil {
		handler(ctx, event)
	}
}
