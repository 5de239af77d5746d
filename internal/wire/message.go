package wire

import "encoding/json"

// ServerMessageKind discriminates the recognized shapes of an inbound
// top-level JSON object. Go has no sum types, so the closed set is modeled
// as an enum plus a struct of typed, mostly-nil accessor fields.
type ServerMessageKind int

const (
	KindIdentityToken ServerMessageKind = iota
	KindInitialSubscription
	KindTransactionUpdate
	KindTransactionCommit
	KindDatabaseUpdate
	KindSubscriptionUpdate
	KindError
	KindRawMessage
)

func (k ServerMessageKind) String() string {
	switch k {
	case KindIdentityToken:
		return "identity_token"
	case KindInitialSubscription:
		return "initial_subscription"
	case KindTransactionUpdate:
		return "transaction_update"
	case KindTransactionCommit:
		return "transaction_commit"
	case KindDatabaseUpdate:
		return "database_update"
	case KindSubscriptionUpdate:
		return "subscription_update"
	case KindError:
		return "error"
	default:
		return "raw_message"
	}
}

// IdentityToken is the credential challenge response delivered in-band on
// some deployments (the out-of-band HTTP-header challenge is the common
// path; this covers servers that also echo it as a message).
type IdentityToken struct {
	Identity     string `json:"identity"`
	Token        string `json:"token"`
	ConnectionID string `json:"connection_id"`
}

// TableRows is one table's rows within a subscription or update message.
type TableRows struct {
	TableName string            `json:"table_name"`
	Rows      []json.RawMessage `json:"rows"`
}

// InitialSubscription is the initial row snapshot sent after Subscribe.
type InitialSubscription struct {
	Tables []TableRows `json:"tables"`
}

// TableDelta is one table's operation batch within a TransactionUpdate.
type TableDelta struct {
	Operation string            `json:"operation"`
	Rows      []json.RawMessage `json:"rows"`
}

// TransactionUpdate is a committed set of row deltas, keyed by table name.
type TransactionUpdate struct {
	Timestamp float64               `json:"timestamp"`
	Tables    map[string]TableDelta `json:"tables"`
}

// TransactionCommit reports the outcome of a reducer call's transaction.
type TransactionCommit struct {
	Status                       string   `json:"status"`
	Timestamp                    float64  `json:"timestamp"`
	EnergyQuantaUsed             *int64   `json:"energy_quanta_used,omitempty"`
	TotalHostExecutionDuration   *float64 `json:"total_host_execution_duration,omitempty"`
}

// DatabaseUpdate carries a request-scoped row update, optionally correlated
// to an outstanding request_id.
type DatabaseUpdate struct {
	RequestID                 string          `json:"request_id,omitempty"`
	Tables                    json.RawMessage `json:"tables"`
	TotalHostExecutionDuration *float64       `json:"total_host_execution_duration,omitempty"`
}

// SubscriptionUpdate reports a change in subscription status.
type SubscriptionUpdate struct {
	Status    string          `json:"status"`
	Tables    json.RawMessage `json:"tables"`
	Timestamp *float64        `json:"timestamp,omitempty"`
}

// ServerError is the structured error payload the server may push.
type ServerError struct {
	Message string          `json:"message"`
	Code    string          `json:"code,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

// ServerMessage is the decoded form of one inbound top-level JSON object.
// Exactly the field named by Kind is non-nil, except RequestID which is
// populated whenever the source object carried a "request_id" key,
// regardless of Kind, so the session's correlation routing can check it
// before falling back to discriminator-based event dispatch.
type ServerMessage struct {
	Kind               ServerMessageKind
	RequestID          string
	IdentityToken      *IdentityToken
	InitialSub         *InitialSubscription
	TransactionUpdate  *TransactionUpdate
	TransactionCommit  *TransactionCommit
	DatabaseUpdate     *DatabaseUpdate
	SubscriptionUpdate *SubscriptionUpdate
	Error              *ServerError
	Raw                json.RawMessage
}

// probe is used only to sniff which discriminator key and request_id (if
// any) a decoded object carries, before unmarshaling into the typed shape.
type probe struct {
	RequestID           *string          `json:"request_id"`
	IdentityToken       *json.RawMessage `json:"IdentityToken"`
	InitialSubscription *json.RawMessage `json:"InitialSubscription"`
	TransactionUpdate   *json.RawMessage `json:"TransactionUpdate"`
	TransactionCommit   *json.RawMessage `json:"TransactionCommit"`
	DatabaseUpdate      *json.RawMessage `json:"DatabaseUpdate"`
	SubscriptionUpdate  *json.RawMessage `json:"SubscriptionUpdate"`
	Error               *json.RawMessage `json:"Error"`
}

// DropError marks a frame that was silently dropped per the wire error
// policy. errors.As can recover the underlying cause via Unwrap.
type DropError struct {
	Cause error
}

func (e *DropError) Error() string {
	if e.Cause == nil {
		return "wire: frame dropped"
	}
	return "wire: frame dropped: " + e.Cause.Error()
}

func (e *DropError) Unwrap() error { return e.Cause }

// DecodeServerMessage classifies data by discriminator key into a
// ServerMessage. A TEXT frame that fails to parse as JSON is reported via a
// *DropError rather than a hard failure, matching the wire error policy.
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	var p probe
	if err := json.Unmarshal(data, &p); err != nil {
		return ServerMessage{}, &DropError{Cause: err}
	}

	msg := ServerMessage{Kind: KindRawMessage, Raw: data}
	if p.RequestID != nil {
		msg.RequestID = *p.RequestID
	}

	switch {
	case p.IdentityToken != nil:
		var v IdentityToken
		if err := json.Unmarshal(*p.IdentityToken, &v); err != nil {
			return ServerMessage{}, &DropError{Cause: err}
		}
		msg.Kind, msg.IdentityToken = KindIdentityToken, &v
	case p.InitialSubscription != nil:
		var v InitialSubscription
		if err := json.Unmarshal(*p.InitialSubscription, &v); err != nil {
			return ServerMessage{}, &DropError{Cause: err}
		}
		msg.Kind, msg.InitialSub = KindInitialSubscription, &v
	case p.TransactionUpdate != nil:
		var v TransactionUpdate
		if err := json.Unmarshal(*p.TransactionUpdate, &v); err != nil {
			return ServerMessage{}, &DropError{Cause: err}
		}
		msg.Kind, msg.TransactionUpdate = KindTransactionUpdate, &v
	case p.TransactionCommit != nil:
		var v TransactionCommit
		if err := json.Unmarshal(*p.TransactionCommit, &v); err != nil {
			return ServerMessage{}, &DropError{Cause: err}
		}
		msg.Kind, msg.TransactionCommit = KindTransactionCommit, &v
	case p.DatabaseUpdate != nil:
		var v DatabaseUpdate
		if err := json.Unmarshal(*p.DatabaseUpdate, &v); err != nil {
			return ServerMessage{}, &DropError{Cause: err}
		}
		msg.Kind, msg.DatabaseUpdate = KindDatabaseUpdate, &v
		if v.RequestID != "" {
			msg.RequestID = v.RequestID
		}
	case p.SubscriptionUpdate != nil:
		var v SubscriptionUpdate
		if err := json.Unmarshal(*p.SubscriptionUpdate, &v); err != nil {
			return ServerMessage{}, &DropError{Cause: err}
		}
		msg.Kind, msg.SubscriptionUpdate = KindSubscriptionUpdate, &v
	case p.Error != nil:
		var v ServerError
		if err := json.Unmarshal(*p.Error, &v); err != nil {
			return ServerMessage{}, &DropError{Cause: err}
		}
		msg.Kind, msg.Error = KindError, &v
	}

	return msg, nil
}
