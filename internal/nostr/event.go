// Package nostr implements the event types and wire framing of the relay
// substrate the ledger speaks: signed JSON events exchanged with relays over
// websockets. Only the subset the ledger needs is implemented.
package nostr

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Event kinds used by the ledger.
const (
	// KindTransaction carries transaction requests and outcomes.
	KindTransaction = 1112

	// KindEphemeral is the ephemeral category counterpart of KindTransaction.
	// Reserved; the ledger does not publish it.
	KindEphemeral = 21111

	// KindBalance is the parametrised-replaceable kind carrying balance
	// announcements, addressed by a stable "d" tag.
	KindBalance = 31111
)

// Event is a signed substrate event. ID is the stable hash of the signed
// payload and doubles as the ledger's idempotency key.
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// Serialize returns the canonical serialization the event id is computed
// over: the JSON array [0, pubkey, created_at, kind, tags, content].
func (e *Event) Serialize() ([]byte, error) {
	arr := []interface{}{0, e.PubKey, e.CreatedAt, e.Kind, e.Tags, e.Content}
	return json.Marshal(arr)
}

// ComputeID returns the hex-encoded SHA-256 of the canonical serialization.
func (e *Event) ComputeID() (string, error) {
	data, err := e.Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize event: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Sign computes the event id and Schnorr signature using the given
// hex-encoded 32-byte secret key, filling in PubKey, ID and Sig.
func (e *Event) Sign(secretKeyHex string) error {
	raw, err := hex.DecodeString(secretKeyHex)
	if err != nil {
		return fmt.Errorf("decode secret key: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("secret key must be 32 bytes, got %d", len(raw))
	}

	priv := secp256k1.PrivKeyFromBytes(raw)
	pub := priv.PubKey().SerializeCompressed()
	// x-only public key, compressed form without the parity prefix
	e.PubKey = hex.EncodeToString(pub[1:])

	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}

	id, err := e.ComputeID()
	if err != nil {
		return err
	}
	e.ID = id

	digest, err := hex.DecodeString(id)
	if err != nil {
		return fmt.Errorf("decode event id: %w", err)
	}

	// btcec/v2 aliases the decred secp256k1 key types, so the private key
	// can be handed to the schnorr package directly.
	sig, err := schnorr.Sign(priv, digest)
	if err != nil {
		return fmt.Errorf("schnorr sign: %w", err)
	}
	e.Sig = hex.EncodeToString(sig.Serialize())

	return nil
}

// CheckID recomputes the id and reports whether it matches the stored one.
func (e *Event) CheckID() (bool, error) {
	id, err := e.ComputeID()
	if err != nil {
		return false, err
	}
	return id == e.ID, nil
}

// Age returns how long ago the event was created relative to now.
func (e *Event) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(e.CreatedAt, 0))
}
