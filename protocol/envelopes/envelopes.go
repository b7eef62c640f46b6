// Package envelopes codecs the JSON-array frames exchanged between a client
// and the gateway over the WebSocket connection (spec §6). Each frame is a
// JSON array whose first element is a string label identifying its kind.
package envelopes

import (
	"encoding/json"
	"fmt"

	"relaygate.dev/protocol/filter"
	"relaygate.dev/protocol/nostrevent"
)

// Labels for every frame type the gateway understands.
const (
	Event         = "EVENT"
	Req           = "REQ"
	Close         = "CLOSE"
	Auth          = "AUTH"
	Ping          = "PING"
	Pong          = "PONG"
	Notice        = "NOTICE"
	EOSE          = "EOSE"
	OK            = "OK"
	Token         = "TOKEN"
	TokenRevoked  = "REVOKED"
	ClosedMessage = "CLOSED"
)

// Identify peeks at the first element of a JSON-array frame and returns its
// label plus the raw elements that follow it.
func Identify(msg []byte) (label string, rest []json.RawMessage, err error) {
	var all []json.RawMessage
	if err = json.Unmarshal(msg, &all); err != nil {
		return "", nil, err
	}
	if len(all) == 0 {
		return "", nil, fmt.Errorf("empty envelope")
	}
	if err = json.Unmarshal(all[0], &label); err != nil {
		return "", nil, fmt.Errorf("malformed envelope label: %w", err)
	}
	return label, all[1:], nil
}

// EventSubmission is the client->gateway ["EVENT", event] frame.
type EventSubmission struct {
	Event *nostrevent.E
}

func ParseEventSubmission(rest []json.RawMessage) (e EventSubmission, err error) {
	if len(rest) < 1 {
		return e, fmt.Errorf("EVENT: missing event body")
	}
	ev, err := nostrevent.Parse(rest[0])
	if err != nil {
		return e, fmt.Errorf("EVENT: %w", err)
	}
	e.Event = ev
	return e, nil
}

// EventResult is the gateway->client ["EVENT", subId, event] frame.
type EventResult struct {
	SubId string
	Event *nostrevent.E
}

func (r EventResult) Marshal() ([]byte, error) {
	raw, err := r.Event.Marshal()
	if err != nil {
		return nil, err
	}
	return json.Marshal([]interface{}{Event, r.SubId, json.RawMessage(raw)})
}

// ReqFrame is the client->gateway ["REQ", subId, filter...] frame.
type ReqFrame struct {
	SubId   string
	Filters *filter.S
}

func ParseReq(rest []json.RawMessage) (r ReqFrame, err error) {
	if len(rest) < 1 {
		return r, fmt.Errorf("REQ: missing subscription id")
	}
	if err = json.Unmarshal(rest[0], &r.SubId); err != nil {
		return r, fmt.Errorf("REQ: bad subscription id: %w", err)
	}
	r.Filters = &filter.S{}
	for _, raw := range rest[1:] {
		f := &filter.F{}
		if err = json.Unmarshal(raw, f); err != nil {
			return r, fmt.Errorf("REQ: bad filter: %w", err)
		}
		r.Filters.F = append(r.Filters.F, f)
	}
	if len(r.Filters.F) == 0 {
		return r, fmt.Errorf("REQ: no filters")
	}
	return r, nil
}

// CloseFrame is the client->gateway ["CLOSE", subId] frame.
type CloseFrame struct{ SubId string }

func ParseClose(rest []json.RawMessage) (c CloseFrame, err error) {
	if len(rest) < 1 {
		return c, fmt.Errorf("CLOSE: missing subscription id")
	}
	err = json.Unmarshal(rest[0], &c.SubId)
	return c, err
}

// NewNotice builds a gateway->client ["NOTICE", text] frame.
func NewNotice(text string) ([]byte, error) {
	return json.Marshal([]interface{}{Notice, text})
}

// NewEOSE builds a ["EOSE", subId] frame.
func NewEOSE(subId string) ([]byte, error) {
	return json.Marshal([]interface{}{EOSE, subId})
}

// NewClosed builds a ["CLOSED", subId, message] frame, the NIP-01 way for a
// relay to end a subscription from its own side.
func NewClosed(subId string, message string) ([]byte, error) {
	return json.Marshal([]interface{}{ClosedMessage, subId, message})
}

// NewOK builds an ["OK", eventId, success, message] frame.
func NewOK(eventId string, success bool, message string) ([]byte, error) {
	return json.Marshal([]interface{}{OK, eventId, success, message})
}

// TokenRevokedPayload is the {reason, sequence} object of the gateway->client
// ["TOKEN", "REVOKED", {reason, sequence}] control frame that
// NewTokenRevoked builds on revocation (§4.6).
type TokenRevokedPayload struct {
	Reason   string `json:"reason,omitempty"`
	Sequence uint64 `json:"sequence"`
}

func NewTokenRevoked(reason string, sequence uint64) ([]byte, error) {
	return json.Marshal(
		[]interface{}{
			Token, TokenRevoked,
			TokenRevokedPayload{Reason: reason, Sequence: sequence},
		},
	)
}
