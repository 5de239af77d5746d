package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mattsp1290/blackholio-go-client/internal/credentials"
	"github.com/mattsp1290/blackholio-go-client/internal/wire"
	"github.com/mattsp1290/blackholio-go-client/model"
)

// Session is one WebSocket connection's lifecycle: auth handshake,
// subscription request, correlation registry, keepalive, and reconnect.
// The zero value is not usable; construct with New.
type Session struct {
	cfg   Config
	store *credentials.Store

	stateMu sync.RWMutex
	state   State

	connMu sync.RWMutex
	conn   *websocket.Conn

	sendMu                sync.Mutex
	negotiatedSubprotocol string

	correlation    *correlationRegistry
	events         chan Event
	requestCounter atomic.Uint64

	open                 atomic.Bool
	closing              atomic.Bool
	subscriptionsActive  atomic.Bool
	lastDataAtUnixNano   atomic.Int64

	subscriptionReadyMu   sync.Mutex
	subscriptionReady     chan struct{}

	messagesReceived atomic.Uint64
	bytesReceived    atomic.Uint64
	bytesSent        atomic.Uint64

	cancelBackground context.CancelFunc
	wg               sync.WaitGroup

	connectedAt time.Time
}

// New builds a Session for cfg. Credentials, if store is non-nil, are
// loaded from and persisted to store across the auth handshake.
func New(cfg Config, store *credentials.Store) (*Session, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Session{
		cfg:               cfg,
		store:             store,
		state:             StateDisconnected,
		correlation:       newCorrelationRegistry(),
		events:            make(chan Event, eventBufferSize),
		subscriptionReady: make(chan struct{}),
	}, nil
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// SubscriptionsActive reports whether any InitialSubscription or
// TransactionUpdate has been received since the last connect.
func (s *Session) SubscriptionsActive() bool {
	return s.subscriptionsActive.Load()
}

// LastDataAt returns the time of the most recent subscription data, and
// false if none has arrived yet.
func (s *Session) LastDataAt() (time.Time, bool) {
	n := s.lastDataAtUnixNano.Load()
	if n == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, n), true
}

// WaitForSubscriptionData blocks until subscription data has been received
// or timeout elapses, returning the current liveness state either way —
// Testable Scenario S8.
func (s *Session) WaitForSubscriptionData(timeout time.Duration) bool {
	s.subscriptionReadyMu.Lock()
	ready := s.subscriptionReady
	s.subscriptionReadyMu.Unlock()

	select {
	case <-ready:
		return true
	case <-time.After(timeout):
		return s.subscriptionsActive.Load()
	}
}

// IsWebSocketOpen reports whether the underlying connection is believed
// open. It never panics: gorilla/websocket's *websocket.Conn exposes no
// closed/close_code/state attribute to probe the way the dynamically typed
// original does, so liveness is instead tracked by an atomic flag that
// Connect sets and that is cleared when the receive loop's read fails
// (including on a peer close frame), when a keepalive ping fails, or by
// Disconnect — Testable Property 8.
func (s *Session) IsWebSocketOpen() (open bool) {
	defer func() {
		if recover() != nil {
			open = false
		}
	}()
	return s.open.Load()
}

// Connect executes the connect sequence from spec.md §4.5 steps 1-6.
func (s *Session) Connect(ctx context.Context) error {
	s.setState(StateConnecting)

	connectCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectionTimeout)
	defer cancel()

	outcome := dial(connectCtx, s.cfg.Endpoint, s.cfg.ConnectionTimeout, s.store, true)
	switch outcome.kind {
	case dialFatal:
		s.setState(StateFailed)
		return outcome.err

	case dialAuthChallenge:
		if s.store != nil {
			cred := model.Credential{
				Identity:     outcome.challenge.identity,
				Token:        outcome.challenge.token,
				Host:         s.cfg.Endpoint.Host,
				DatabaseName: s.cfg.Endpoint.DatabaseName,
				IssuedAt:     time.Now(),
			}
			if err := s.store.Save(cred); err != nil {
				s.setState(StateFailed)
				return model.NewError(model.KindAuthentication, "session.Connect", err)
			}
		}
		outcome = dial(connectCtx, s.cfg.Endpoint, s.cfg.ConnectionTimeout, s.store, true)
		if outcome.kind != dialOpened {
			s.setState(StateFailed)
			if outcome.err != nil {
				return outcome.err
			}
			return model.NewError(model.KindAuthentication, "session.Connect", fmt.Errorf("auth retry did not yield an open connection"))
		}
	}

	if outcome.negotiatedSubprotocol != model.Subprotocol {
		slog.Warn("session: unexpected negotiated subprotocol", "got", outcome.negotiatedSubprotocol, "want", model.Subprotocol)
	}

	s.connMu.Lock()
	s.conn = outcome.conn
	s.negotiatedSubprotocol = outcome.negotiatedSubprotocol
	s.connMu.Unlock()

	if err := s.sendSubscribe(); err != nil {
		s.setState(StateFailed)
		return err
	}

	s.subscriptionsActive.Store(false)
	s.lastDataAtUnixNano.Store(0)
	s.subscriptionReadyMu.Lock()
	s.subscriptionReady = make(chan struct{})
	s.subscriptionReadyMu.Unlock()

	s.closing.Store(false)
	s.open.Store(true)
	s.connectedAt = time.Now()

	bgCtx, bgCancel := context.WithCancel(context.Background())
	s.cancelBackground = bgCancel
	s.wg.Add(2)
	go s.receiveLoop(bgCtx)
	go s.keepaliveLoop(bgCtx)

	s.setState(StateConnected)
	s.emit(Event{Kind: EventConnected})
	return nil
}

func (s *Session) sendSubscribe() error {
	queries := make([]string, 0, len(s.cfg.CoreTables))
	for _, table := range s.cfg.CoreTables {
		queries = append(queries, fmt.Sprintf("SELECT * FROM %s", table))
	}
	data, err := wire.EncodeSubscribe(queries)
	if err != nil {
		return model.NewError(model.KindProtocolError, "session.sendSubscribe", err)
	}
	if err := s.writeText(data); err != nil {
		return model.NewError(model.KindConnectionLost, "session.sendSubscribe", err)
	}
	return nil
}

func (s *Session) writeText(data []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()
	if conn == nil {
		return fmt.Errorf("session: not connected")
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	s.bytesSent.Add(uint64(len(data)))
	return nil
}

// SendRequest sends a CallReducer frame and awaits its correlated
// response, per spec.md §4.5 "Send".
func (s *Session) SendRequest(ctx context.Context, reducer string, args json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	if s.State() != StateConnected {
		return nil, model.NewError(model.KindGameState, "session.SendRequest", fmt.Errorf("cannot send while state=%s", s.State()))
	}

	reqID := s.nextRequestID()
	slot := s.correlation.create(reqID)

	data, err := wire.EncodeCallReducer(reqID, reducer, args)
	if err != nil {
		s.correlation.remove(reqID)
		return nil, model.NewError(model.KindProtocolError, "session.SendRequest", err)
	}
	if err := s.writeText(data); err != nil {
		s.correlation.remove(reqID)
		return nil, model.NewError(model.KindConnectionLost, "session.SendRequest", err)
	}

	sm, err := slot.await(ctx, timeout)
	if err != nil {
		s.correlation.remove(reqID)
		if err == context.DeadlineExceeded {
			return nil, model.NewError(model.KindTimeout, "session.SendRequest "+reducer, err)
		}
		return nil, model.NewError(model.KindConnectionLost, "session.SendRequest "+reducer, err)
	}
	if sm.Kind == wire.KindError && sm.Error != nil {
		return nil, model.NewError(model.KindProtocolError, "session.SendRequest "+reducer, fmt.Errorf("%s", sm.Error.Message))
	}
	return sm.Raw, nil
}

func (s *Session) nextRequestID() string {
	n := s.requestCounter.Add(1)
	return fmt.Sprintf("req_%d_%d", n, time.Now().UnixMilli())
}

// Disconnect performs the graceful close sequence from spec.md §4.5
// "Disconnect (graceful)": keepalive and receive are cancelled, the socket
// is closed with code 1000, and all pending completion slots are failed
// with cancellation.
func (s *Session) Disconnect(ctx context.Context) error {
	start := s.connectedAt
	s.closing.Store(true)

	if s.cancelBackground != nil {
		s.cancelBackground()
	}

	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn != nil {
		s.sendMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		s.sendMu.Unlock()
		_ = conn.Close()
	}

	s.wg.Wait()
	s.open.Store(false)
	s.correlation.cancelAll()
	s.setState(StateDisconnected)

	s.emit(Event{
		Kind:             EventDisconnected,
		Duration:         time.Since(start),
		MessagesReceived: s.messagesReceived.Load(),
		BytesReceived:    s.bytesReceived.Load(),
	})
	return nil
}

func (s *Session) receiveLoop(ctx context.Context) {
	defer s.wg.Done()

	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			s.open.Store(false)
			s.handleDisconnect(err)
			return
		}

		s.messagesReceived.Add(1)
		s.bytesReceived.Add(uint64(len(data)))

		class := wire.ClassifyFrame(msgType, s.negotiatedSubprotocol)
		if class == wire.FrameControl {
			continue
		}
		if class == wire.FrameBinaryViolation {
			slog.Warn("session: binary frame received under JSON subprotocol", "bytes", len(data))
		}

		sm, err := wire.DecodeServerMessage(data)
		if err != nil {
			slog.Warn("session: dropping malformed frame", "error", err)
			continue
		}
		s.route(sm)
	}
}

func (s *Session) route(sm wire.ServerMessage) {
	if sm.RequestID != "" && s.correlation.resolve(sm.RequestID, sm) {
		return
	}

	switch sm.Kind {
	case wire.KindIdentityToken:
		s.emit(Event{Kind: EventIdentityToken, Message: sm})
	case wire.KindInitialSubscription:
		s.markSubscriptionLive()
		s.emit(Event{Kind: EventInitialSubscription, Message: sm})
	case wire.KindTransactionUpdate:
		s.markSubscriptionLive()
		s.emit(Event{Kind: EventTransactionUpdate, Message: sm})
	case wire.KindTransactionCommit:
		s.emit(Event{Kind: EventTransactionCommit, Message: sm})
	case wire.KindDatabaseUpdate:
		s.emit(Event{Kind: EventDatabaseUpdate, Message: sm})
	case wire.KindSubscriptionUpdate:
		s.emit(Event{Kind: EventSubscriptionUpdate, Message: sm})
	case wire.KindError:
		s.emit(Event{Kind: EventServerError, Message: sm})
	default:
		s.emit(Event{Kind: EventRawMessage, Message: sm})
	}
}

func (s *Session) markSubscriptionLive() {
	s.subscriptionsActive.Store(true)
	s.lastDataAtUnixNano.Store(time.Now().UnixNano())

	s.subscriptionReadyMu.Lock()
	select {
	case <-s.subscriptionReady:
	default:
		close(s.subscriptionReady)
	}
	s.subscriptionReadyMu.Unlock()
}

func (s *Session) keepaliveLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.connMu.RLock()
			conn := s.conn
			s.connMu.RUnlock()

			s.sendMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			s.sendMu.Unlock()
			if err != nil {
				s.open.Store(false)
				s.handleDisconnect(err)
				return
			}
		}
	}
}

// handleDisconnect classifies the fault that ended the receive or keepalive
// loop and either schedules a reconnect (retryable kinds) or transitions
// directly to Failed (non-retryable), per spec.md §4.5 "Reconnect policy".
// It is a no-op while a graceful Disconnect is already in progress.
func (s *Session) handleDisconnect(cause error) {
	if s.closing.Load() {
		return
	}

	kind := classifyDisconnectError(cause)
	if !kind.Retryable() {
		s.setState(StateFailed)
		s.emit(Event{Kind: EventServerError, Err: model.NewError(kind, "session", cause)})
		return
	}

	s.setState(StateReconnecting)
	go s.reconnectLoop(cause)
}

func classifyDisconnectError(err error) model.Kind {
	if merr, ok := model.AsError(err); ok {
		return merr.Kind
	}
	return model.KindConnectionLost
}

func (s *Session) reconnectLoop(cause error) {
	for attempt := 1; attempt <= s.cfg.MaxReconnectAttempts; attempt++ {
		delay := backoffDelay(s.cfg.BaseReconnectDelay, s.cfg.MaxReconnectDelay, attempt)
		select {
		case <-time.After(delay):
		}
		if s.closing.Load() {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectionTimeout)
		err := s.Connect(ctx)
		cancel()
		if err == nil {
			return
		}
		slog.Warn("session: reconnect attempt failed", "attempt", attempt, "error", err)
		cause = err
	}
	s.setState(StateFailed)
	s.emit(Event{Kind: EventServerError, Err: model.NewError(model.KindServerUnavailable, "session.reconnect", cause)})
}

// backoffDelay computes base*2^(attempt-1), jittered by up to +-10% and
// capped at maxDelay, per spec.md §4.5 "Reconnect policy".
func backoffDelay(base, maxDelay time.Duration, attempt int) time.Duration {
	raw := float64(base) * math.Pow(2, float64(attempt-1))
	jitter := raw * 0.1 * (2*rand.Float64() - 1)
	d := time.Duration(raw + jitter)
	if d > maxDelay {
		d = maxDelay
	}
	if d < 0 {
		d = 0
	}
	return d
}
