package nostr

import (
	"fmt"
	"strconv"
	"strings"
)

// Tag is a single event tag: a name followed by its values.
type Tag []string

// Tags is the ordered tag list of an event.
type Tags []Tag

// Name returns the tag name, or "" for a malformed empty tag.
func (t Tag) Name() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

// Value returns the first value of the tag, or "".
func (t Tag) Value() string {
	if len(t) < 2 {
		return ""
	}
	return t[1]
}

// First returns the first tag with the given name, or nil.
func (ts Tags) First(name string) Tag {
	for _, t := range ts {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

// Values returns the first value of every tag with the given name, in order.
func (ts Tags) Values(name string) []string {
	var out []string
	for _, t := range ts {
		if t.Name() == name {
			out = append(out, t.Value())
		}
	}
	return out
}

// Recipients returns the values of all "p" tags, in order. By convention the
// first recipient of a request is the ledger itself (the subscription target)
// and the second is the transfer counterparty.
func (ts Tags) Recipients() []string {
	return ts.Values("p")
}

// References returns the values of all "e" tags, in order.
func (ts Tags) References() []string {
	return ts.Values("e")
}

// Type returns the value of the first "t" tag, or "".
func (ts Tags) Type() string {
	return ts.First("t").Value()
}

// Delegation describes a delegation tag: the delegator authorised the signer
// to publish on its behalf under the stated conditions.
type Delegation struct {
	Delegator  string
	Conditions string
	Token      string
}

// ErrNoDelegation is returned by ParseDelegation when the event carries no
// delegation tag at all.
var ErrNoDelegation = fmt.Errorf("no delegation tag")

// ParseDelegation extracts and checks the delegation tag of an event.
// The conditions string is a "&"-separated list of kind=N, created_at<N and
// created_at>N clauses, all of which must hold for the delegated event.
// Signature verification of the delegation token is out of scope here; the
// relay layer owns cryptographic checks.
func ParseDelegation(e *Event) (*Delegation, error) {
	tag := e.Tags.First("delegation")
	if tag == nil {
		return nil, ErrNoDelegation
	}
	if len(tag) < 4 || tag[1] == "" {
		return nil, fmt.Errorf("malformed delegation tag")
	}

	d := &Delegation{
		Delegator:  tag[1],
		Conditions: tag[2],
		Token:      tag[3],
	}

	if err := checkDelegationConditions(d.Conditions, e); err != nil {
		return nil, err
	}

	return d, nil
}

func checkDelegationConditions(conditions string, e *Event) error {
	if conditions == "" {
		return nil
	}

	for _, clause := range strings.Split(conditions, "&") {
		switch {
		case strings.HasPrefix(clause, "kind="):
			kind, err := strconv.Atoi(strings.TrimPrefix(clause, "kind="))
			if err != nil {
				return fmt.Errorf("invalid delegation kind clause %q", clause)
			}
			if e.Kind != kind {
				return fmt.Errorf("delegation does not cover kind %d", e.Kind)
			}
		case strings.HasPrefix(clause, "created_at<"):
			limit, err := strconv.ParseInt(strings.TrimPrefix(clause, "created_at<"), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid delegation created_at clause %q", clause)
			}
			if e.CreatedAt >= limit {
				return fmt.Errorf("delegation expired")
			}
		case strings.HasPrefix(clause, "created_at>"):
			limit, err := strconv.ParseInt(strings.TrimPrefix(clause, "created_at>"), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid delegation created_at clause %q", clause)
			}
			if e.CreatedAt <= limit {
				return fmt.Errorf("delegation not yet valid")
			}
		default:
			return fmt.Errorf("unsupported delegation condition %q", clause)
		}
	}

	return nil
}

// Author resolves the authorship of an event: the delegator when a valid
// delegation tag is present, the signer otherwise. The second return value
// reports whether a delegation tag was present but unresolvable.
func Author(e *Event) (author string, badDelegation bool) {
	d, err := ParseDelegation(e)
	if err == nil {
		return d.Delegator, false
	}
	if err == ErrNoDelegation {
		return e.PubKey, false
	}
	return e.PubKey, true
}
