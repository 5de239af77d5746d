package wire

import (
	"github.com/gorilla/websocket"

	"github.com/mattsp1290/blackholio-go-client/model"
)

// FrameClass is the outcome of policing one inbound WebSocket frame's type
// against the negotiated subprotocol.
type FrameClass int

const (
	// FrameText is a normal application TEXT frame; decode as JSON.
	FrameText FrameClass = iota
	// FrameBinaryViolation is a BINARY frame received under the JSON
	// subprotocol. The caller logs a warning and attempts a best-effort
	// UTF-8/JSON decode rather than dropping it outright.
	FrameBinaryViolation
	// FrameControl is a PING/PONG/CLOSE frame; gorilla/websocket's own
	// control-frame handlers process these and they never reach
	// DecodeServerMessage.
	FrameControl
)

// MaxFrameBytes is the maximum inbound frame size this client accepts.
const MaxFrameBytes = 10 * 1024 * 1024 // 10 MiB

// ClassifyFrame determines how the receive loop should handle an inbound
// frame given its gorilla/websocket message type and the subprotocol
// negotiated at handshake.
func ClassifyFrame(messageType int, negotiatedSubprotocol string) FrameClass {
	switch messageType {
	case websocket.TextMessage:
		return FrameText
	case websocket.BinaryMessage:
		if negotiatedSubprotocol == model.Subprotocol {
			return FrameBinaryViolation
		}
		return FrameText
	default:
		// PingMessage, PongMessage, CloseMessage.
		return FrameControl
	}
}
