package nostr

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterMarshalTagKeys(t *testing.T) {
	f := Filter{
		Kinds: []int{1112},
		P:     []string{"ledger-key"},
		T:     []string{"inbound-transaction-start"},
		Since: 1700000000,
	}

	data, err := json.Marshal(f)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Contains(t, m, "#p")
	assert.Contains(t, m, "#t")
	assert.NotContains(t, m, "ids")
	assert.NotContains(t, m, "limit")
	assert.EqualValues(t, 1700000000, m["since"])
}

func TestFilterMatches(t *testing.T) {
	f := Filter{
		Kinds: []int{1112},
		P:     []string{"ledger-key"},
		T:     []string{"internal-transaction-start"},
		Since: 1700000000,
	}

	event := &Event{
		Kind:      1112,
		CreatedAt: 1700000100,
		Tags: Tags{
			{"p", "ledger-key"},
			{"p", "counterparty"},
			{"t", "internal-transaction-start"},
		},
	}
	assert.True(t, f.Matches(event))

	wrongKind := *event
	wrongKind.Kind = 1
	assert.False(t, f.Matches(&wrongKind))

	tooOld := *event
	tooOld.CreatedAt = 1600000000
	assert.False(t, f.Matches(&tooOld))

	otherRecipient := *event
	otherRecipient.Tags = Tags{{"p", "somebody-else"}, {"t", "internal-transaction-start"}}
	assert.False(t, f.Matches(&otherRecipient))

	otherType := *event
	otherType.Tags = Tags{{"p", "ledger-key"}, {"t", "inbound-transaction-start"}}
	assert.False(t, f.Matches(&otherType))
}
