package port

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/aelexs/directchat/internal/domain"
	"github.com/aelexs/directchat/internal/errmap"
)

// socketConn is one authenticated WebSocket session. The read pump owns
// reads; the write pump is the only writer of data frames.
type socketConn struct {
	id     domain.ConnectionID
	userID domain.UserID
	ws     *websocket.Conn

	out  chan []byte
	done chan struct{}

	closeOnce sync.Once
	// closeFrame is set once, before done is closed. A zero Code sends no
	// close frame.
	closeFrame errmap.WebSocketClose
}

func newSocketConn(ws *websocket.Conn, userID domain.UserID, bufferSize int) *socketConn {
	return &socketConn{
		id:     domain.GenerateConnectionID(),
		userID: userID,
		ws:     ws,
		out:    make(chan []byte, bufferSize),
		done:   make(chan struct{}),
	}
}

func (c *socketConn) ID() domain.ConnectionID { return c.id }

// Enqueue implements registry.Conn. It never blocks.
func (c *socketConn) Enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- frame:
		return true
	default:
		return false
	}
}

// Close implements registry.Conn. The peer receives a going-away close frame.
func (c *socketConn) Close(reason string) {
	c.closeWith(errmap.WebSocketClose{Code: websocket.CloseGoingAway, Reason: reason})
}

func (c *socketConn) closeWith(frame errmap.WebSocketClose) {
	c.closeOnce.Do(func() {
		c.closeFrame = frame
		close(c.done)
	})
}
