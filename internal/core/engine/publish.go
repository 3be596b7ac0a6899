package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relaymint/tokend/internal/nostr"
)

// publishSuccess emits the ok outcome, one balance announcement per affected
// balance, and schedules the deferred re-announcement round.
func (e *Engine) publishSuccess(ctx context.Context, result *txResult) {
	e.outbox.Publish(ctx, e.okEvent(result.req))

	for _, ab := range result.affected {
		e.outbox.Publish(ctx, e.balanceEvent(ab, result.req.Event.ID))
	}

	e.scheduleReannounce(result.req.Event.ID, result.affected)
}

// okEvent builds the success outcome: the request content echoed back, typed
// with the variant's ok tag and threaded onto the request id plus every event
// reference the request itself carried.
func (e *Engine) okEvent(req *TxRequest) *nostr.Event {
	tags := nostr.Tags{
		{"p", req.Sender},
		{"p", req.Receiver},
		{"e", req.Event.ID},
		{"t", req.Variant.OkTag()},
	}
	for _, ref := range req.Event.Tags.References() {
		tags = append(tags, nostr.Tag{"e", ref})
	}

	return &nostr.Event{
		PubKey:    e.cfg.LedgerPubKey,
		CreatedAt: time.Now().Unix(),
		Kind:      nostr.KindTransaction,
		Tags:      tags,
		Content:   string(req.Payload),
	}
}

// errorEvent builds the rejection outcome carrying the stable reason string.
// Parties are resolved best effort from the raw event since rejection may
// precede party resolution.
func (e *Engine) errorEvent(event *nostr.Event, variant Variant, reason string) *nostr.Event {
	author, _ := nostr.Author(event)
	receiver := e.cfg.LedgerPubKey
	if recipients := event.Tags.Recipients(); len(recipients) >= 2 && recipients[1] != "" {
		receiver = recipients[1]
	}

	return &nostr.Event{
		PubKey:    e.cfg.LedgerPubKey,
		CreatedAt: time.Now().Unix(),
		Kind:      nostr.KindTransaction,
		Tags: nostr.Tags{
			{"p", author},
			{"p", receiver},
			{"e", event.ID},
			{"t", variant.ErrorTag()},
		},
		Content: string(marshalMessages(reason)),
	}
}

func marshalMessages(reasons ...string) []byte {
	payload, err := json.Marshal(struct {
		Messages []string `json:"messages"`
	}{Messages: reasons})
	if err != nil {
		return []byte(`{"messages":[]}`)
	}
	return payload
}

// balanceEvent builds a parametrised-replaceable announcement for one
// (account, token) balance. The stable d tag makes relays retain only the
// latest amount per pair.
func (e *Engine) balanceEvent(ab AffectedBalance, triggeringID string) *nostr.Event {
	return &nostr.Event{
		PubKey:    e.cfg.LedgerPubKey,
		CreatedAt: time.Now().Unix(),
		Kind:      nostr.KindBalance,
		Tags: nostr.Tags{
			{"p", ab.Account},
			{"d", "balance:" + ab.TokenName + ":" + ab.Account},
			{"e", triggeringID},
			{"amount", ab.Amount.String()},
		},
		Content: "{}",
	}
}

// scheduleReannounce publishes a second round of balance announcements after
// the settling delay, re-reading current amounts so late relay deliveries
// converge on the authoritative state.
func (e *Engine) scheduleReannounce(triggeringID string, affected []AffectedBalance) {
	if len(affected) == 0 {
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		timer := time.NewTimer(e.cfg.RepublishInterval)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-e.closed:
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		e.reannounce(ctx, triggeringID, affected)
	}()
}

func (e *Engine) reannounce(ctx context.Context, triggeringID string, affected []AffectedBalance) {
	names := make(map[uuid.UUID]string, len(affected))
	byAccount := make(map[string][]uuid.UUID)
	for _, ab := range affected {
		names[ab.TokenID] = ab.TokenName
		byAccount[ab.Account] = append(byAccount[ab.Account], ab.TokenID)
	}

	for account, tokenIDs := range byAccount {
		balances, err := e.store.Balances().List(ctx, account, tokenIDs)
		if err != nil {
			e.log.Warn("re-announcement query failed",
				zap.String("account", account), zap.Error(err))
			continue
		}
		for _, b := range balances {
			e.outbox.Publish(ctx, e.balanceEvent(AffectedBalance{
				Account:   b.AccountID,
				TokenID:   b.TokenID,
				TokenName: names[b.TokenID],
				Amount:    b.Amount,
			}, triggeringID))
		}
	}
}
