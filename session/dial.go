package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mattsp1290/blackholio-go-client/internal/credentials"
	"github.com/mattsp1290/blackholio-go-client/internal/wire"
	"github.com/mattsp1290/blackholio-go-client/model"
)

// dialOutcomeKind discriminates the three-way result of one dial attempt.
// This is the Go rendering of Design Note "exceptions-for-control-flow ...
// become a structured branch": the dial function returns a closed sum
// instead of raising.
type dialOutcomeKind int

const (
	dialOpened dialOutcomeKind = iota
	dialAuthChallenge
	dialFatal
)

// authChallenge carries the identity/token pair offered by a 400 response.
type authChallenge struct {
	identity string
	token    string
}

// dialOutcome is the closed sum {Opened(socket) | AuthChallenge(headers) |
// Fatal(err)} named in spec.md's Design Notes.
type dialOutcome struct {
	kind                  dialOutcomeKind
	conn                  *websocket.Conn
	negotiatedSubprotocol string
	challenge             *authChallenge
	err                   error
}

const writeTimeout = 10 * time.Second

// dial opens one WebSocket connection attempt. If withAuth is true and a
// non-expired credential is on file for the endpoint, it is sent as a
// bearer token. A 400 response carrying both spacetime-identity and
// spacetime-identity-token headers yields dialAuthChallenge rather than an
// error; any other failure yields dialFatal tagged with the appropriate
// model.Kind.
func dial(ctx context.Context, endpoint model.Endpoint, timeout time.Duration, store *credentials.Store, withAuth bool) dialOutcome {
	header := http.Header{}
	if withAuth && store != nil {
		if cred, ok, err := store.Load(endpoint.Host, endpoint.DatabaseName); err == nil && ok {
			header.Set("Authorization", "Bearer "+cred.Token)
		}
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
		Subprotocols:     []string{model.Subprotocol},
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint.URL(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusBadRequest {
			identity := resp.Header.Get("spacetime-identity")
			token := resp.Header.Get("spacetime-identity-token")
			if identity != "" && token != "" {
				return dialOutcome{kind: dialAuthChallenge, challenge: &authChallenge{identity: identity, token: token}}
			}
			return dialOutcome{kind: dialFatal, err: model.NewError(model.KindAuthentication, "session.dial", err)}
		}
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return dialOutcome{kind: dialFatal, err: model.NewError(model.KindAuthentication, "session.dial", err)}
		}
		return dialOutcome{kind: dialFatal, err: model.NewError(model.KindServerUnavailable, "session.dial", err)}
	}

	conn.SetReadLimit(wire.MaxFrameBytes)
	return dialOutcome{kind: dialOpened, conn: conn, negotiatedSubprotocol: conn.Subprotocol()}
}

func (o dialOutcome) String() string {
	switch o.kind {
	case dialOpened:
		return fmt.Sprintf("opened(subprotocol=%s)", o.negotiatedSubprotocol)
	case dialAuthChallenge:
		return "auth_challenge"
	default:
		return fmt.Sprintf("fatal(%v)", o.err)
	}
}
