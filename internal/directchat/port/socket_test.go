package port_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aelexs/directchat/internal/auth"
	"github.com/aelexs/directchat/internal/auth/authtest"
	"github.com/aelexs/directchat/internal/directchat/app"
	"github.com/aelexs/directchat/internal/directchat/app/apptest"
	"github.com/aelexs/directchat/internal/directchat/port"
	"github.com/aelexs/directchat/internal/domain"
	"github.com/aelexs/directchat/internal/registry"
	"github.com/aelexs/directchat/pkg/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	alice = domain.MustUserID("7c1d1a52-4f0e-4a8e-9b8e-0c7a6f3d2e01")
	bob   = domain.MustUserID("7c1d1a52-4f0e-4a8e-9b8e-0c7a6f3d2e02")
	carol = domain.MustUserID("7c1d1a52-4f0e-4a8e-9b8e-0c7a6f3d2e03")
)

// stubLimiter implements port.RateLimiter with a function field.
type stubLimiter struct {
	allowFn func(ctx context.Context, userID domain.UserID) (bool, error)
}

func (l *stubLimiter) Allow(ctx context.Context, userID domain.UserID) (bool, error) {
	if l.allowFn != nil {
		return l.allowFn(ctx, userID)
	}
	return true, nil
}

type harness struct {
	server   *httptest.Server
	registry *registry.Registry
	store    *apptest.MemoryStore
	service  *app.ChatService
	limiter  *stubLimiter
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		registry: registry.New(logger),
		store:    apptest.NewMemoryStore(),
		limiter:  &stubLimiter{},
	}
	h.service = app.NewChatService(app.ChatServiceConfig{
		Store:  h.store,
		Users:  apptest.NewMemoryUsers(alice, bob, carol),
		Codec:  apptest.PrefixCodec{},
		Clock:  domain.RealClock{},
		Logger: logger,
	})
	verifier := auth.NewVerifier(authtest.Validator(domain.RealClock{}), nil)

	router := chi.NewRouter()
	router.Handle("/ws", port.NewSocketHandler(port.SocketConfig{
		Auth:     verifier,
		Service:  h.service,
		Registry: h.registry,
		Limiter:  h.limiter,
		Logger:   logger,
	}))
	port.NewHTTPHandler(verifier, h.service, logger).Routes(router)

	h.server = httptest.NewServer(router)
	t.Cleanup(func() {
		h.registry.Close("test finished")
		h.server.Close()
	})
	return h
}

func (h *harness) wsURL() string {
	return "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws"
}

func (h *harness) dial(header http.Header) (*websocket.Conn, *http.Response, error) {
	return websocket.DefaultDialer.Dial(h.wsURL(), header)
}

// connect opens a session for userID and waits until it is registered.
func (h *harness) connect(t *testing.T, userID domain.UserID) *websocket.Conn {
	t.Helper()

	header := http.Header{"Authorization": {"Bearer " + authtest.Token(t, userID)}}
	c, resp, err := h.dial(header)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { c.Close() })

	require.Eventually(t, func() bool {
		conn, ok := h.registry.Lookup(userID)
		return ok && conn != nil
	}, 2*time.Second, 10*time.Millisecond)
	return c
}

func send(t *testing.T, c *websocket.Conn, event protocol.ClientEvent, payload any) {
	t.Helper()
	frame, err := protocol.NewFrame(string(event), payload)
	require.NoError(t, err)
	require.NoError(t, c.WriteJSON(frame))
}

func readFrame(t *testing.T, c *websocket.Conn) protocol.Frame {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame protocol.Frame
	require.NoError(t, c.ReadJSON(&frame))
	return frame
}

// expectNoFrame fails if a frame arrives within a short window. The
// connection is unusable for reads afterwards.
func expectNoFrame(t *testing.T, c *websocket.Conn) {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, data, err := c.ReadMessage()
	require.Error(t, err, "unexpected frame: %s", data)
	var netErr net.Error
	assert.True(t, errors.As(err, &netErr) && netErr.Timeout(), "want read timeout, got %v", err)
}

func readError(t *testing.T, c *websocket.Conn) protocol.Error {
	t.Helper()
	frame := readFrame(t, c)
	require.Equal(t, string(protocol.EventOnError), frame.Event)
	var payload protocol.Error
	require.NoError(t, frame.ParsePayload(&payload))
	assert.Equal(t, protocol.StatusError, payload.Status)
	assert.Equal(t, len(payload.Errors), payload.ErrorsLength)
	return payload
}

type chatSuccess struct {
	Status protocol.Status     `json:"status"`
	Data   protocol.DirectChat `json:"data"`
}

type messageSuccess struct {
	Status protocol.Status  `json:"status"`
	Data   protocol.Message `json:"data"`
}

func TestSocketHandler_Admission(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		header http.Header
	}{
		{name: "no header", header: nil},
		{name: "empty header", header: http.Header{"Authorization": {""}}},
		{name: "scheme only", header: http.Header{"Authorization": {"Bearer"}}},
		{name: "scheme and blank", header: http.Header{"Authorization": {"Bearer   "}}},
		{name: "other scheme", header: http.Header{"Authorization": {"Basic " + authtest.Token(t, alice)}}},
		{name: "garbage token", header: http.Header{"Authorization": {"Bearer not-a-jwt"}}},
		{name: "wrong secret", header: http.Header{"Authorization": {"Bearer " + authtest.SignedToken(t, "other-secret", alice)}}},
		{name: "expired", header: http.Header{"Authorization": {"Bearer " + authtest.Token(t, alice,
			authtest.WithExpiry(time.Now().Add(-time.Minute)))}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, resp, err := h.dial(tt.header)
			if c != nil {
				c.Close()
			}
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			var body protocol.Error
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, "Unauthorized", body.Title)
			assert.Equal(t, 0, h.registry.Len())
		})
	}
}

func TestSocketHandler_CreateChat(t *testing.T) {
	h := newHarness(t)
	a := h.connect(t, alice)
	b := h.connect(t, bob)

	send(t, a, protocol.EventCreateChat, protocol.CreateChat{
		ReceiverID:  bob.String(),
		MessageText: "  hello bob  ",
	})

	for _, c := range []*websocket.Conn{a, b} {
		frame := readFrame(t, c)
		require.Equal(t, string(protocol.EventOnCreateChat), frame.Event)

		var got chatSuccess
		require.NoError(t, frame.ParsePayload(&got))
		assert.Equal(t, protocol.StatusSuccess, got.Status)
		assert.ElementsMatch(t,
			[]protocol.Participant{{ID: alice.String()}, {ID: bob.String()}},
			got.Data.Users)
		require.Len(t, got.Data.Messages, 1)
		assert.Equal(t, "hello bob", got.Data.Messages[0].MessageText)
		assert.Equal(t, alice.String(), got.Data.Messages[0].SenderID)
	}

	t.Run("second chat for the pair is a conflict for the sender only", func(t *testing.T) {
		send(t, b, protocol.EventCreateChat, protocol.CreateChat{
			ReceiverID:  alice.String(),
			MessageText: "again",
		})

		payload := readError(t, b)
		assert.Equal(t, "Conflict", payload.Title)
		require.Len(t, payload.Errors, 1)
		assert.Equal(t, "direct chat between these users already exists", payload.Errors[0].Message)

		expectNoFrame(t, a)
	})
}

func TestSocketHandler_SendMessage(t *testing.T) {
	h := newHarness(t)
	chat, err := h.service.CreateChat(context.Background(), alice, bob, "hi")
	require.NoError(t, err)

	a := h.connect(t, alice)
	b := h.connect(t, bob)
	c := h.connect(t, carol)

	send(t, b, protocol.EventSendMessage, protocol.SendMessage{
		DirectChatID: chat.ID.String(),
		MessageText:  "hi alice",
	})

	for _, conn := range []*websocket.Conn{a, b} {
		frame := readFrame(t, conn)
		require.Equal(t, string(protocol.EventOnReceiveMessage), frame.Event)

		var got messageSuccess
		require.NoError(t, frame.ParsePayload(&got))
		assert.Equal(t, "hi alice", got.Data.MessageText)
		assert.Equal(t, bob.String(), got.Data.SenderID)
		assert.Equal(t, chat.ID.String(), got.Data.DirectChatID)
	}
	expectNoFrame(t, c)

	t.Run("outsider", func(t *testing.T) {
		c2 := h.connect(t, carol)
		send(t, c2, protocol.EventSendMessage, protocol.SendMessage{
			DirectChatID: chat.ID.String(),
			MessageText:  "let me in",
		})

		payload := readError(t, c2)
		assert.Equal(t, "Bad Request", payload.Title)
		assert.Equal(t, "you are not a member of this direct chat", payload.Errors[0].Message)
	})

	t.Run("unknown chat", func(t *testing.T) {
		send(t, a, protocol.EventSendMessage, protocol.SendMessage{
			DirectChatID: domain.GenerateChatID().String(),
			MessageText:  "anyone?",
		})

		payload := readError(t, a)
		assert.Equal(t, "Not Found", payload.Title)
		assert.Equal(t, "direct chat with provided id does not exist", payload.Errors[0].Message)
	})
}

func TestSocketHandler_Validation(t *testing.T) {
	h := newHarness(t)
	a := h.connect(t, alice)

	tests := []struct {
		name    string
		event   protocol.ClientEvent
		payload any
		want    []protocol.FieldError
	}{
		{
			name:    "blank text reports only emptiness",
			event:   protocol.EventCreateChat,
			payload: protocol.CreateChat{ReceiverID: bob.String(), MessageText: "   "},
			want:    []protocol.FieldError{{Field: "messageText", Message: "messageText should not be empty"}},
		},
		{
			name:    "long text reports only length",
			event:   protocol.EventCreateChat,
			payload: protocol.CreateChat{ReceiverID: bob.String(), MessageText: strings.Repeat("é", 501)},
			want: []protocol.FieldError{{
				Field:   "messageText",
				Message: "messageText must be shorter than or equal to 500 characters",
			}},
		},
		{
			name:    "every field is reported",
			event:   protocol.EventCreateChat,
			payload: protocol.CreateChat{ReceiverID: "bob", MessageText: ""},
			want: []protocol.FieldError{
				{Field: "receiverId", Message: "receiverId must be a UUID"},
				{Field: "messageText", Message: "messageText should not be empty"},
			},
		},
		{
			name:    "missing payload",
			event:   protocol.EventSendMessage,
			payload: nil,
			want: []protocol.FieldError{
				{Field: "directChatId", Message: "directChatId must be a UUID"},
				{Field: "messageText", Message: "messageText should not be empty"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send(t, a, tt.event, tt.payload)

			payload := readError(t, a)
			assert.Equal(t, "Bad Request", payload.Title)
			assert.Equal(t, tt.want, payload.Errors)
		})
	}

	chats, err := h.store.ListUserChats(context.Background(), alice, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, chats, "invalid events never reach the service")
}

func TestSocketHandler_BadFrames(t *testing.T) {
	h := newHarness(t)
	a := h.connect(t, alice)

	t.Run("malformed json", func(t *testing.T) {
		require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"event":`)))

		payload := readError(t, a)
		assert.Equal(t, "Bad Request", payload.Title)
		assert.Equal(t, "malformed frame", payload.Errors[0].Message)
	})

	t.Run("unknown event", func(t *testing.T) {
		send(t, a, protocol.ClientEvent("DELETE_CHAT"), nil)

		payload := readError(t, a)
		assert.Equal(t, "Bad Request", payload.Title)
		assert.Contains(t, payload.Errors[0].Message, "DELETE_CHAT")
	})

	t.Run("mistyped payload", func(t *testing.T) {
		require.NoError(t, a.WriteMessage(websocket.TextMessage,
			[]byte(`{"event":"CREATE_CHAT","payload":{"receiverId":42}}`)))

		payload := readError(t, a)
		assert.Equal(t, "malformed payload", payload.Errors[0].Message)
	})

	t.Run("binary frame closes the session", func(t *testing.T) {
		require.NoError(t, a.WriteMessage(websocket.BinaryMessage, []byte{0x01}))

		require.NoError(t, a.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err := a.ReadMessage()
		assert.True(t, websocket.IsCloseError(err, websocket.CloseUnsupportedData), "got %v", err)
	})
}

func TestSocketHandler_RateLimit(t *testing.T) {
	h := newHarness(t)
	a := h.connect(t, alice)

	t.Run("denied", func(t *testing.T) {
		h.limiter.allowFn = func(context.Context, domain.UserID) (bool, error) { return false, nil }
		send(t, a, protocol.EventCreateChat, protocol.CreateChat{ReceiverID: bob.String(), MessageText: "hi"})

		payload := readError(t, a)
		assert.Equal(t, "Too Many Requests", payload.Title)
	})

	t.Run("limiter down", func(t *testing.T) {
		h.limiter.allowFn = func(context.Context, domain.UserID) (bool, error) {
			return false, errors.New("dial tcp: connection refused")
		}
		send(t, a, protocol.EventCreateChat, protocol.CreateChat{ReceiverID: bob.String(), MessageText: "hi"})

		payload := readError(t, a)
		assert.Equal(t, "Service Unavailable", payload.Title)
		assert.NotContains(t, payload.Errors[0].Message, "connection refused")
	})
}

func TestSocketHandler_LastConnectionWins(t *testing.T) {
	h := newHarness(t)
	chat, err := h.service.CreateChat(context.Background(), alice, bob, "hi")
	require.NoError(t, err)

	old := h.connect(t, alice)
	first, _ := h.registry.Lookup(alice)
	fresh := h.connect(t, alice)
	require.Eventually(t, func() bool {
		current, _ := h.registry.Lookup(alice)
		return current.ID() != first.ID()
	}, 2*time.Second, 10*time.Millisecond)
	b := h.connect(t, bob)

	send(t, b, protocol.EventSendMessage, protocol.SendMessage{DirectChatID: chat.ID.String(), MessageText: "ping"})

	assert.Equal(t, string(protocol.EventOnReceiveMessage), readFrame(t, fresh).Event)
	assert.Equal(t, string(protocol.EventOnReceiveMessage), readFrame(t, b).Event)
	expectNoFrame(t, old)

	// The replaced session's disconnect must not evict the newer one.
	require.NoError(t, old.Close())
	time.Sleep(100 * time.Millisecond)
	current, ok := h.registry.Lookup(alice)
	require.True(t, ok)
	assert.NotEqual(t, first.ID(), current.ID())
}

func TestSocketHandler_Shutdown(t *testing.T) {
	h := newHarness(t)
	a := h.connect(t, alice)

	h.registry.Close("server_shutdown")

	require.NoError(t, a.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := a.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	// Sessions admitted after shutdown are closed right away.
	late, resp, err := h.dial(http.Header{"Authorization": {"Bearer " + authtest.Token(t, bob)}})
	require.NoError(t, err)
	resp.Body.Close()
	defer late.Close()

	require.NoError(t, late.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = late.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Equal(t, 0, h.registry.Len())
}
