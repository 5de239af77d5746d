package session

import (
	"time"

	"github.com/mattsp1290/blackholio-go-client/internal/wire"
)

// EventKind discriminates the events a Session emits on its Events()
// channel. This is the Go rendering of the source's event-emitter
// callbacks: a channel instead of a registered handler list.
type EventKind string

const (
	EventConnected            EventKind = "connected"
	EventDisconnected         EventKind = "disconnected"
	EventIdentityToken        EventKind = "identity_token"
	EventInitialSubscription  EventKind = "initial_subscription"
	EventTransactionUpdate    EventKind = "transaction_update"
	EventSubscriptionUpdate   EventKind = "subscription_update"
	EventTransactionCommit    EventKind = "transaction_commit"
	EventDatabaseUpdate       EventKind = "database_update"
	EventServerError          EventKind = "error"
	EventRawMessage           EventKind = "raw_message"
)

// Event is one notification delivered on a Session's event channel.
type Event struct {
	Kind    EventKind
	Message wire.ServerMessage
	Err     error

	// Populated only on EventDisconnected.
	Duration         time.Duration
	MessagesReceived uint64
	BytesReceived    uint64
}

// eventBufferSize bounds how many unconsumed events queue before emit starts
// dropping them; a slow or absent consumer must never block the receive
// loop, matching spec.md's "partial failure... never tears down the
// session" spirit applied to the event surface itself.
const eventBufferSize = 256

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
	}
}

// Events returns the channel Event values are delivered on. The channel is
// never closed by the Session (a caller's range loop should instead select
// on its own cancellation).
func (s *Session) Events() <-chan Event {
	return s.events
}
