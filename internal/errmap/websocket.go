package errmap

import "github.com/gorilla/websocket"

// WebSocketClose is a close code and reason sent before terminating a socket.
type WebSocketClose struct {
	Code   int
	Reason string
}

// Message returns the encoded close control frame payload.
func (c WebSocketClose) Message() []byte {
	return websocket.FormatCloseMessage(c.Code, c.Reason)
}

// Close frames for server-initiated terminations. Request failures never
// close the socket; they are reported with ON_ERROR instead.
var (
	CloseServerShutdown    = WebSocketClose{Code: websocket.CloseGoingAway, Reason: "server_shutdown"}
	CloseMessageTooBig     = WebSocketClose{Code: websocket.CloseMessageTooBig, Reason: "message_too_big"}
	CloseProtocolViolation = WebSocketClose{Code: websocket.CloseUnsupportedData, Reason: "binary_frames_unsupported"}
	CloseInternalError     = WebSocketClose{Code: websocket.CloseInternalServerErr, Reason: "internal_error"}
)
