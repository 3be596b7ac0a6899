package nostr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeIDDeterministic(t *testing.T) {
	event := &Event{
		PubKey:    "97c70a44366a6535c145b333f973ea86dfdc2d7a99da618c40c64705ad98e322",
		CreatedAt: 1700000000,
		Kind:      KindTransaction,
		Tags:      Tags{{"t", "internal-transaction-start"}},
		Content:   `{"tokens":{"ECU":1}}`,
	}

	first, err := event.ComputeID()
	require.NoError(t, err)
	second, err := event.ComputeID()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestComputeIDSensitiveToContent(t *testing.T) {
	a := &Event{PubKey: "ab", CreatedAt: 1, Kind: 1112, Content: "x"}
	b := &Event{PubKey: "ab", CreatedAt: 1, Kind: 1112, Content: "y"}

	idA, err := a.ComputeID()
	require.NoError(t, err)
	idB, err := b.ComputeID()
	require.NoError(t, err)
	assert.NotEqual(t, idA, idB)
}

func TestSignFillsIdentityAndSignature(t *testing.T) {
	event := &Event{
		Kind:    KindBalance,
		Tags:    Tags{{"d", "balance:ECU:someone"}},
		Content: "{}",
	}

	secret := "0000000000000000000000000000000000000000000000000000000000000001"
	require.NoError(t, event.Sign(secret))

	assert.Len(t, event.PubKey, 64)
	assert.Len(t, event.ID, 64)
	assert.Len(t, event.Sig, 128)
	assert.NotZero(t, event.CreatedAt)

	ok, err := event.CheckID()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSignRejectsBadKey(t *testing.T) {
	event := &Event{Kind: KindTransaction}
	assert.Error(t, event.Sign("zz"))
	assert.Error(t, event.Sign("abcd"))
}

func TestCheckIDMismatch(t *testing.T) {
	event := &Event{
		ID:        "0000000000000000000000000000000000000000000000000000000000000000",
		PubKey:    "ab",
		CreatedAt: 1,
		Kind:      KindTransaction,
	}
	ok, err := event.CheckID()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAge(t *testing.T) {
	now := time.Unix(1700001000, 0)
	event := &Event{CreatedAt: 1700000000}
	assert.Equal(t, 1000*time.Second, event.Age(now))
}
