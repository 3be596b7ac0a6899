package engine

import (
	"context"
	"fmt"

	"github.com/relaymint/tokend/internal/nostr"
	"github.com/relaymint/tokend/internal/storage/ledgerdb"
)

// validate runs the shared pre-validation pipeline over a raw request event
// and produces a TxRequest ready for execution. Checks run in a fixed order;
// the first failed check decides the published rejection. The minter
// precondition of mint and burn is a handler concern and checked after this
// pipeline.
func (e *Engine) validate(ctx context.Context, event *nostr.Event, variant Variant) (*TxRequest, error) {
	exists, err := e.store.Events().Exists(ctx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("idempotency check: %w", err)
	}
	if exists {
		return nil, ErrDuplicate
	}

	content, err := ParseContent(event.Content)
	if err != nil || len(content.Tokens) == 0 {
		return nil, ErrUnparsableContent
	}

	author, badDelegation := nostr.Author(event)
	if badDelegation {
		return nil, ErrBadDelegation
	}

	req := &TxRequest{
		Event:   event,
		Variant: variant,
		Author:  author,
		Content: content,
	}
	if err := resolveParties(req, e.cfg.LedgerPubKey); err != nil {
		return nil, err
	}

	for _, amount := range content.Tokens {
		if amount.Sign() <= 0 || !amount.IsInteger() {
			return nil, ErrNonPositiveAmount
		}
	}

	names := content.TokenNames()
	tokens, err := e.store.Tokens().GetByNames(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("token lookup: %w", err)
	}
	if len(tokens) != len(names) {
		return nil, ErrUnsupportedToken
	}
	req.Tokens = tokens

	txType, err := e.store.TransactionTypes().GetByDescription(ctx, variant.Descriptor())
	if err != nil {
		if ledgerdb.IsNotFound(err) {
			return nil, ErrUnsupportedType
		}
		return nil, fmt.Errorf("transaction type lookup: %w", err)
	}
	req.TypeID = txType.ID

	payload, err := content.MarshalJSON()
	if err != nil {
		return nil, ErrUnparsableContent
	}
	req.Payload = payload

	return req, nil
}

// resolveParties derives sender and receiver from the request per variant.
// The first "p" recipient is always the ledger; internal transfers and mints
// name the counterparty in the second. An outbound burn needs no
// counterparty, the tokens leave the ledger entirely.
func resolveParties(req *TxRequest, ledgerPubKey string) error {
	recipients := req.Event.Tags.Recipients()

	switch req.Variant {
	case Internal, Inbound:
		if len(recipients) < 2 || recipients[1] == "" {
			return ErrUnparsableContent
		}
		req.Sender = req.Author
		req.Receiver = recipients[1]
	case Outbound:
		req.Sender = req.Author
		req.Receiver = ledgerPubKey
		if len(recipients) >= 2 && recipients[1] != "" {
			req.Receiver = recipients[1]
		}
	}

	return nil
}
