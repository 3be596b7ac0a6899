package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/relaymint/tokend/internal/storage/ledgerdb"
)

// debitAll removes the requested amounts from the sender, one snapshot per
// token. Sufficiency is checked up front by cardinality: the store returns
// only balances that cover the request, and any missing token means the
// sender cannot pay, whether the balance is short or absent.
func debitAll(ctx context.Context, tc ledgerdb.TransactionContext, req *TxRequest, txID, eventID uuid.UUID) ([]AffectedBalance, error) {
	required := make(map[uuid.UUID]decimal.Decimal, len(req.Tokens))
	byTokenID := make(map[uuid.UUID]string, len(req.Tokens))
	for name, token := range req.Tokens {
		required[token.ID] = req.Content.Tokens[name]
		byTokenID[token.ID] = name
	}

	balances, err := tc.Balances().ListSufficient(ctx, req.Sender, required)
	if err != nil {
		return nil, fmt.Errorf("load sender balances: %w", err)
	}
	if len(balances) != len(required) {
		return nil, ErrInsufficientFunds
	}

	affected := make([]AffectedBalance, 0, len(balances))
	for i := range balances {
		b := &balances[i]
		delta := required[b.TokenID].Neg()
		if _, err := tc.Balances().ApplyDelta(ctx, b, delta, txID, eventID); err != nil {
			return nil, fmt.Errorf("debit %s: %w", byTokenID[b.TokenID], err)
		}
		affected = append(affected, AffectedBalance{
			Account:   b.AccountID,
			TokenID:   b.TokenID,
			TokenName: byTokenID[b.TokenID],
			Amount:    b.Amount,
		})
	}

	return affected, nil
}

// creditAll adds the requested amounts to the receiver, creating a balance
// with its first snapshot for any token the receiver does not hold yet.
func creditAll(ctx context.Context, tc ledgerdb.TransactionContext, req *TxRequest, txID, eventID uuid.UUID) ([]AffectedBalance, error) {
	tokenIDs := make([]uuid.UUID, 0, len(req.Tokens))
	for _, token := range req.Tokens {
		tokenIDs = append(tokenIDs, token.ID)
	}

	existing, err := tc.Balances().List(ctx, req.Receiver, tokenIDs)
	if err != nil {
		return nil, fmt.Errorf("load receiver balances: %w", err)
	}
	held := make(map[uuid.UUID]*ledgerdb.Balance, len(existing))
	for i := range existing {
		held[existing[i].TokenID] = &existing[i]
	}

	affected := make([]AffectedBalance, 0, len(req.Tokens))
	for _, name := range req.Content.TokenNames() {
		token := req.Tokens[name]
		amount := req.Content.Tokens[name]

		if b, ok := held[token.ID]; ok {
			if _, err := tc.Balances().ApplyDelta(ctx, b, amount, txID, eventID); err != nil {
				return nil, fmt.Errorf("credit %s: %w", name, err)
			}
			affected = append(affected, AffectedBalance{
				Account:   b.AccountID,
				TokenID:   b.TokenID,
				TokenName: name,
				Amount:    b.Amount,
			})
			continue
		}

		b, err := tc.Balances().CreateWithSnapshot(ctx, req.Receiver, token.ID, amount, txID, eventID)
		if err != nil {
			return nil, fmt.Errorf("credit %s: %w", name, err)
		}
		affected = append(affected, AffectedBalance{
			Account:   b.AccountID,
			TokenID:   b.TokenID,
			TokenName: name,
			Amount:    b.Amount,
		})
	}

	return affected, nil
}
