package nostr

import (
	"encoding/json"
	"fmt"
)

// Client-to-relay and relay-to-client frames are JSON arrays whose first
// element is a label. Only the labels the ledger exchanges are implemented.

// ReqFrame encodes a ["REQ", subID, filters...] subscription request.
func ReqFrame(subID string, filters ...Filter) ([]byte, error) {
	arr := make([]interface{}, 0, 2+len(filters))
	arr = append(arr, "REQ", subID)
	for _, f := range filters {
		arr = append(arr, f)
	}
	return json.Marshal(arr)
}

// EventFrame encodes a ["EVENT", event] publication.
func EventFrame(e *Event) ([]byte, error) {
	return json.Marshal([]interface{}{"EVENT", e})
}

// CloseFrame encodes a ["CLOSE", subID] subscription teardown.
func CloseFrame(subID string) ([]byte, error) {
	return json.Marshal([]interface{}{"CLOSE", subID})
}

// RelayMessage is a decoded relay-to-client frame.
type RelayMessage struct {
	Label string

	// EVENT fields
	SubID string
	Event *Event

	// OK fields
	EventID  string
	Accepted bool
	Reason   string
}

// ParseRelayMessage decodes one relay frame. Unknown labels are returned
// with only Label set so callers can skip them.
func ParseRelayMessage(data []byte) (*RelayMessage, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("malformed relay frame: %w", err)
	}
	if len(arr) == 0 {
		return nil, fmt.Errorf("empty relay frame")
	}

	var label string
	if err := json.Unmarshal(arr[0], &label); err != nil {
		return nil, fmt.Errorf("malformed relay frame label: %w", err)
	}

	msg := &RelayMessage{Label: label}

	switch label {
	case "EVENT":
		if len(arr) < 3 {
			return nil, fmt.Errorf("EVENT frame too short")
		}
		if err := json.Unmarshal(arr[1], &msg.SubID); err != nil {
			return nil, fmt.Errorf("EVENT frame sub id: %w", err)
		}
		msg.Event = &Event{}
		if err := json.Unmarshal(arr[2], msg.Event); err != nil {
			return nil, fmt.Errorf("EVENT frame payload: %w", err)
		}
	case "OK":
		if len(arr) < 3 {
			return nil, fmt.Errorf("OK frame too short")
		}
		if err := json.Unmarshal(arr[1], &msg.EventID); err != nil {
			return nil, fmt.Errorf("OK frame event id: %w", err)
		}
		if err := json.Unmarshal(arr[2], &msg.Accepted); err != nil {
			return nil, fmt.Errorf("OK frame accepted flag: %w", err)
		}
		if len(arr) > 3 {
			_ = json.Unmarshal(arr[3], &msg.Reason)
		}
	case "EOSE", "NOTICE", "CLOSED":
		if len(arr) > 1 {
			_ = json.Unmarshal(arr[1], &msg.SubID)
		}
	}

	return msg, nil
}
