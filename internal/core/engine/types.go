// Package engine implements the transaction-processing core of the ledger:
// the shared pre-validation pipeline, the balance mutation primitives, the
// three transaction variants, and the retry controller that drives a request
// from delivery to a terminal outcome.
package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/relaymint/tokend/internal/nostr"
	"github.com/relaymint/tokend/internal/storage/ledgerdb"
)

// Variant identifies one of the three transaction types the ledger handles.
type Variant int

const (
	// Internal moves tokens between two accounts.
	Internal Variant = iota
	// Inbound mints tokens to a receiver; restricted to the minter identity.
	Inbound
	// Outbound burns tokens from the sender; restricted to the minter identity.
	Outbound
)

// Descriptor returns the stored transaction-type description.
func (v Variant) Descriptor() string {
	switch v {
	case Internal:
		return "internal-transaction"
	case Inbound:
		return "inbound-transaction"
	case Outbound:
		return "outbound-transaction"
	}
	return "unknown-transaction"
}

// StartTag is the request type tag the variant subscribes to.
func (v Variant) StartTag() string { return v.Descriptor() + "-start" }

// OkTag is the type tag of a successful outcome event.
func (v Variant) OkTag() string { return v.Descriptor() + "-ok" }

// ErrorTag is the type tag of a rejection outcome event.
func (v Variant) ErrorTag() string { return v.Descriptor() + "-error" }

func (v Variant) String() string { return v.Descriptor() }

// Variants lists all handled variants in a stable order.
func Variants() []Variant { return []Variant{Internal, Inbound, Outbound} }

// VariantFromStartTag resolves a request type tag back to its variant.
func VariantFromStartTag(tag string) (Variant, bool) {
	for _, v := range Variants() {
		if v.StartTag() == tag {
			return v, true
		}
	}
	return 0, false
}

// TxRequest is a request event that passed the pre-validation pipeline.
type TxRequest struct {
	Event   *nostr.Event
	Variant Variant

	TypeID   uuid.UUID
	Sender   string
	Receiver string
	Author   string

	Content *Content
	// Tokens maps every requested token name to its provisioned row.
	Tokens map[string]ledgerdb.Token
	// Payload is the normalized request content persisted with the Event
	// and Transaction rows.
	Payload json.RawMessage
}

// AffectedBalance is one (account, token) balance touched by a committed
// request, carrying the post-commit amount for announcement.
type AffectedBalance struct {
	Account   string
	TokenID   uuid.UUID
	TokenName string
	Amount    decimal.Decimal
}

// Outbox is the one-way sink for outgoing events. Publication is best
// effort and fire-and-forget from the engine's point of view; the
// implementation owns signing, transmission and its own error handling.
type Outbox interface {
	Publish(ctx context.Context, event *nostr.Event)
}

// Config holds the engine's identities and policy knobs.
type Config struct {
	// LedgerPubKey is this ledger's public identity on the substrate.
	LedgerPubKey string

	// MinterPubKey is the single identity authorised to mint and burn.
	MinterPubKey string

	// MaxRetries bounds re-entries on transient faults.
	MaxRetries int

	// RetryBackoff is the wait before the first re-entry; subsequent waits
	// double up to a cap.
	RetryBackoff time.Duration

	// RepublishInterval is the delay before the deferred balance
	// re-announcement.
	RepublishInterval time.Duration
}

// Defaults applied by New when the corresponding field is zero.
const (
	DefaultMaxRetries        = 10
	DefaultRetryBackoff      = 250 * time.Millisecond
	DefaultRepublishInterval = 1000 * time.Millisecond
)
