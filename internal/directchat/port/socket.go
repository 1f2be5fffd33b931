package port

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aelexs/directchat/internal/domain"
	"github.com/aelexs/directchat/internal/errmap"
	"github.com/aelexs/directchat/pkg/protocol"
)

// SocketConfig holds the dependencies and limits of a SocketHandler.
type SocketConfig struct {
	Auth     Authenticator
	Service  ChatService
	Registry ConnectionRegistry
	// Limiter is optional; nil admits every event.
	Limiter RateLimiter
	Logger  *slog.Logger

	HeartbeatInterval  time.Duration
	MaxFrameSize       int64
	OutboundBufferSize int
	WriteTimeout       time.Duration
}

// SocketHandler admits WebSocket sessions and dispatches their events.
type SocketHandler struct {
	cfg      SocketConfig
	logger   *slog.Logger
	upgrader websocket.Upgrader
	events   map[protocol.ClientEvent]eventHandler
}

// NewSocketHandler creates a SocketHandler. Zero limits fall back to the
// compiled defaults.
func NewSocketHandler(cfg SocketConfig) *SocketHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = domain.HeartbeatInterval
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = domain.MaxFrameSize
	}
	if cfg.OutboundBufferSize <= 0 {
		cfg.OutboundBufferSize = domain.OutboundBufferSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = domain.WriteTimeout
	}

	h := &SocketHandler{
		cfg:    cfg,
		logger: cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Clients are authenticated by bearer token, not cookies.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	h.events = buildEventTable(map[protocol.ClientEvent]eventHandler{
		protocol.EventCreateChat:  h.handleCreateChat,
		protocol.EventSendMessage: h.handleSendMessage,
	})
	return h
}

// readTimeout is how long a silent connection survives: two missed pongs.
func (h *SocketHandler) readTimeout() time.Duration {
	return 2 * h.cfg.HeartbeatInterval
}

// ServeHTTP authenticates the upgrade request, upgrades it and runs the
// session until either side closes it.
func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.cfg.Auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		h.logger.InfoContext(r.Context(), "socket.admission_rejected",
			"remote_addr", r.RemoteAddr,
			"error", err,
		)
		writeError(w, err)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		h.logger.WarnContext(r.Context(), "socket.upgrade_failed", "error", err)
		return
	}

	c := newSocketConn(ws, userID, h.cfg.OutboundBufferSize)
	logger := h.logger.With("user_id", userID.String(), "conn_id", c.ID().String())

	if !h.cfg.Registry.Register(userID, c) {
		h.writePump(c, logger)
		return
	}
	defer h.cfg.Registry.Unregister(userID, c)
	logger.InfoContext(r.Context(), "socket.connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(c, logger)
	}()

	// Service calls outlive the session; a disconnect does not cancel them.
	h.readPump(context.WithoutCancel(r.Context()), c, logger)

	c.closeWith(errmap.WebSocketClose{})
	<-writerDone
	logger.InfoContext(r.Context(), "socket.disconnected")
}

func (h *SocketHandler) readPump(ctx context.Context, c *socketConn, logger *slog.Logger) {
	c.ws.SetReadLimit(h.cfg.MaxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(h.readTimeout()))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(h.readTimeout()))
	})

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				// gorilla has already sent the close frame.
				logger.WarnContext(ctx, "socket.frame_too_large",
					"reason", errmap.CloseMessageTooBig.Reason,
					"limit", h.cfg.MaxFrameSize,
				)
			case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				logger.WarnContext(ctx, "socket.read_failed", "error", err)
			}
			return
		}

		if kind != websocket.TextMessage {
			logger.WarnContext(ctx, "socket.protocol_violation", "message_type", kind)
			c.closeWith(errmap.CloseProtocolViolation)
			return
		}

		if !h.dispatch(ctx, c, data, logger) {
			return
		}
	}
}

// writePump drains the outbound queue and keeps the connection alive with
// pings. It closes the socket when it returns.
func (h *SocketHandler) writePump(c *socketConn, logger *slog.Logger) {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Warn("socket.write_failed", "error", err)
				c.closeWith(errmap.WebSocketClose{})
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(h.cfg.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				logger.Warn("socket.ping_failed", "error", err)
				c.closeWith(errmap.WebSocketClose{})
				return
			}
		case <-c.done:
			if c.closeFrame.Code != 0 {
				deadline := time.Now().Add(h.cfg.WriteTimeout)
				_ = c.ws.WriteControl(websocket.CloseMessage, c.closeFrame.Message(), deadline)
			}
			return
		}
	}
}

// dispatch handles one inbound text frame. Request failures are answered
// with ON_ERROR on this connection only. It returns false if the session
// must end.
func (h *SocketHandler) dispatch(ctx context.Context, c *socketConn, data []byte, logger *slog.Logger) (ok bool) {
	ctx, span := tracer.Start(ctx, "socket.dispatch")
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			logger.ErrorContext(ctx, "socket.handler_panic", "panic", p)
			span.SetStatus(codes.Error, "panic")
			c.closeWith(errmap.CloseInternalError)
			ok = false
		}
	}()

	var frame protocol.Frame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
		h.replyError(ctx, c, domain.NewError(domain.ErrBadRequest, "malformed frame"), logger)
		return true
	}
	span.SetAttributes(attribute.String("event", frame.Event))

	handle, found := h.events[protocol.ClientEvent(frame.Event)]
	if !found {
		h.replyError(ctx, c, domain.NewError(domain.ErrBadRequest, "unknown event "+frame.Event), logger)
		return true
	}

	if err := h.admit(ctx, c.userID); err != nil {
		h.replyError(ctx, c, err, logger)
		return true
	}

	if err := handle(ctx, c.userID, frame.Payload); err != nil {
		span.RecordError(err)
		h.replyError(ctx, c, err, logger)
	}
	return true
}

func (h *SocketHandler) admit(ctx context.Context, userID domain.UserID) error {
	if h.cfg.Limiter == nil {
		return nil
	}
	allowed, err := h.cfg.Limiter.Allow(ctx, userID)
	if err != nil {
		return errors.Join(domain.ErrUnavailable, err)
	}
	if !allowed {
		return domain.ErrRateLimited
	}
	return nil
}

func (h *SocketHandler) replyError(ctx context.Context, c *socketConn, err error, logger *slog.Logger) {
	switch {
	case domain.IsClientError(err):
		logger.DebugContext(ctx, "socket.event_rejected", "error", err)
	case domain.IsRetryable(err):
		logger.InfoContext(ctx, "socket.event_deferred", "error", err)
	default:
		logger.WarnContext(ctx, "socket.event_failed", "error", err)
	}

	frame, ferr := protocol.NewFrame(string(protocol.EventOnError), errmap.ToErrorPayload(err))
	if ferr != nil {
		logger.ErrorContext(ctx, "socket.encode_failed", "error", ferr)
		return
	}
	data, ferr := json.Marshal(frame)
	if ferr != nil {
		logger.ErrorContext(ctx, "socket.encode_failed", "error", ferr)
		return
	}
	if !c.Enqueue(data) {
		logger.WarnContext(ctx, "socket.error_dropped", "error", domain.ErrSlowConsumer)
	}
}

// writeError writes the JSON error body for err with its mapped status.
func writeError(w http.ResponseWriter, err error) {
	herr := errmap.ToHTTPError(err)
	writeJSON(w, herr.StatusCode, herr.Body())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
