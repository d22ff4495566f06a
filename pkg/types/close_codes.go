package types

import "github.com/coder/websocket"

// Websocket close codes in the application range. A client must treat
// every code here except CloseTryAgain as terminal: reconnecting will
// not help.
const (
	// CloseAuthRequired: missing or invalid bearer credential.
	CloseAuthRequired websocket.StatusCode = 4001
	// CloseForbidden: authenticated but not authorized for this auction.
	CloseForbidden websocket.StatusCode = 4003
	// CloseNotFound: the auction does not exist.
	CloseNotFound websocket.StatusCode = 4004
	// CloseDeliberate: user-initiated disconnect. The distinct signal
	// that tells the reconnect loop "do not reconnect".
	CloseDeliberate websocket.StatusCode = 4005
	// CloseTryAgain: the room shut down mid-handshake; safe to retry.
	CloseTryAgain websocket.StatusCode = 4006
)

// Terminal reports whether a close code should suppress reconnection.
func Terminal(code websocket.StatusCode) bool {
	switch code {
	case CloseAuthRequired, CloseForbidden, CloseNotFound, CloseDeliberate,
		websocket.StatusNormalClosure:
		return true
	default:
		return false
	}
}
