package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Content is the parsed payload of a transaction request: the requested
// per-token amounts and an optional free-text memo.
type Content struct {
	Tokens map[string]decimal.Decimal
	Memo   string
}

// ParseContent deserialises a request payload. Numeric values are decoded
// through json.Number so that amounts beyond 64-bit range survive exactly.
func ParseContent(raw string) (*Content, error) {
	var wire struct {
		Tokens map[string]json.Number `json:"tokens"`
		Memo   string                 `json:"memo"`
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}

	content := &Content{
		Tokens: make(map[string]decimal.Decimal, len(wire.Tokens)),
		Memo:   wire.Memo,
	}
	for name, num := range wire.Tokens {
		amount, err := decimal.NewFromString(num.String())
		if err != nil {
			return nil, fmt.Errorf("token %q: invalid amount %q", name, num.String())
		}
		content.Tokens[name] = amount
	}

	return content, nil
}

// MarshalJSON emits the wire form with amounts as bare JSON integers, never
// as quoted strings or floats.
func (c *Content) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, len(c.Tokens))
	for name := range c.Tokens {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	buf.WriteString(`{"tokens":{`)
	for i, name := range names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(c.Tokens[name].String())
	}
	buf.WriteByte('}')
	if c.Memo != "" {
		memo, err := json.Marshal(c.Memo)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`,"memo":`)
		buf.Write(memo)
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// TokenNames returns the requested token names in a stable order.
func (c *Content) TokenNames() []string {
	names := make([]string, 0, len(c.Tokens))
	for name := range c.Tokens {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
