// Package wire encodes outbound request frames and decodes inbound server
// messages for the SpacetimeDB v1 JSON WebSocket protocol. It never attaches
// a synthetic discriminator to outbound frames and never fails the caller on
// a single malformed inbound frame.
package wire

import (
	"encoding/json"
	"fmt"
)

// Subscribe is the outbound frame sent once after connect, enumerating the
// core table set as SQL-shaped query strings.
type Subscribe struct {
	QueryStrings []string `json:"query_strings"`
}

// CallReducer is the outbound frame for a client-initiated reducer call.
// RequestID is a Go-specific addition beyond spec.md §4.1's literal field
// list: the correlation registry (§4.5) can only route a DatabaseUpdate's
// optional request_id back to a caller if the request that provoked it
// carried the same id outbound, so the id travels on the wire here too.
type CallReducer struct {
	RequestID string          `json:"request_id,omitempty"`
	Reducer   string          `json:"reducer"`
	Args      json.RawMessage `json:"args"`
}

// OneOffQuery is the outbound frame for an ad-hoc SQL read.
type OneOffQuery struct {
	Query string `json:"query"`
}

// Encode marshals one outbound frame as the single-key wrapper object
// SpacetimeDB expects: {"Subscribe": {...}}, {"CallReducer": {...}}, or
// {"OneOffQuery": {...}}. kind is the exact wrapper key; SpacetimeDB rejects
// any top-level field it does not recognize, so no other field is added.
func Encode(kind string, v any) ([]byte, error) {
	envelope := map[string]any{kind: v}
	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s: %w", kind, err)
	}
	return data, nil
}

// EncodeSubscribe is a convenience wrapper for Encode("Subscribe", ...).
func EncodeSubscribe(queryStrings []string) ([]byte, error) {
	return Encode("Subscribe", Subscribe{QueryStrings: queryStrings})
}

// EncodeCallReducer is a convenience wrapper for Encode("CallReducer", ...).
func EncodeCallReducer(requestID, reducer string, args json.RawMessage) ([]byte, error) {
	return Encode("CallReducer", CallReducer{RequestID: requestID, Reducer: reducer, Args: args})
}

// EncodeOneOffQuery is a convenience wrapper for Encode("OneOffQuery", ...).
func EncodeOneOffQuery(query string) ([]byte, error) {
	return Encode("OneOffQuery", OneOffQuery{Query: query})
}
