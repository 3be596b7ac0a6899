package nostr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagAccessors(t *testing.T) {
	tags := Tags{
		{"p", "ledger-key"},
		{"p", "counterparty-key"},
		{"e", "ref-1"},
		{"t", "internal-transaction-start"},
		{"t", "ignored-second"},
	}

	assert.Equal(t, []string{"ledger-key", "counterparty-key"}, tags.Recipients())
	assert.Equal(t, []string{"ref-1"}, tags.References())
	assert.Equal(t, "internal-transaction-start", tags.Type())
	assert.Nil(t, tags.First("d"))
	assert.Equal(t, "", Tag{}.Name())
	assert.Equal(t, "", Tag{"p"}.Value())
}

func TestParseDelegation(t *testing.T) {
	event := &Event{
		Kind:      1112,
		CreatedAt: 1700000000,
		Tags: Tags{
			{"delegation", "delegator-key", "kind=1112&created_at<1800000000&created_at>1600000000", "sig-token"},
		},
	}

	d, err := ParseDelegation(event)
	require.NoError(t, err)
	assert.Equal(t, "delegator-key", d.Delegator)
	assert.Equal(t, "sig-token", d.Token)
}

func TestParseDelegationConditionFailures(t *testing.T) {
	cases := []struct {
		name       string
		conditions string
		event      Event
	}{
		{"wrong kind", "kind=1", Event{Kind: 1112, CreatedAt: 1700000000}},
		{"expired", "created_at<1600000000", Event{Kind: 1112, CreatedAt: 1700000000}},
		{"not yet valid", "created_at>1800000000", Event{Kind: 1112, CreatedAt: 1700000000}},
		{"unknown clause", "author=somebody", Event{Kind: 1112, CreatedAt: 1700000000}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event := tc.event
			event.Tags = Tags{{"delegation", "delegator-key", tc.conditions, "sig-token"}}
			_, err := ParseDelegation(&event)
			assert.Error(t, err)
		})
	}
}

func TestParseDelegationMissing(t *testing.T) {
	_, err := ParseDelegation(&Event{Tags: Tags{{"p", "x"}}})
	assert.ErrorIs(t, err, ErrNoDelegation)

	_, err = ParseDelegation(&Event{Tags: Tags{{"delegation", "only-delegator"}}})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoDelegation)
}

func TestAuthor(t *testing.T) {
	signed := &Event{PubKey: "signer-key", Kind: 1112, CreatedAt: 1700000000}
	author, bad := Author(signed)
	assert.Equal(t, "signer-key", author)
	assert.False(t, bad)

	delegated := &Event{
		PubKey:    "signer-key",
		Kind:      1112,
		CreatedAt: 1700000000,
		Tags:      Tags{{"delegation", "delegator-key", "kind=1112", "sig-token"}},
	}
	author, bad = Author(delegated)
	assert.Equal(t, "delegator-key", author)
	assert.False(t, bad)

	broken := &Event{
		PubKey:    "signer-key",
		Kind:      1112,
		CreatedAt: 1700000000,
		Tags:      Tags{{"delegation", "delegator-key", "kind=1", "sig-token"}},
	}
	author, bad = Author(broken)
	assert.Equal(t, "signer-key", author)
	assert.True(t, bad)
}
