package registry_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aelexs/directchat/internal/domain"
	"github.com/aelexs/directchat/internal/registry"
	"github.com/aelexs/directchat/pkg/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeConn struct {
	id       domain.ConnectionID
	capacity int

	mu     sync.Mutex
	frames [][]byte
	closed string
}

func newFakeConn(capacity int) *fakeConn {
	return &fakeConn{id: domain.GenerateConnectionID(), capacity: capacity}
}

func (c *fakeConn) ID() domain.ConnectionID { return c.id }

func (c *fakeConn) Enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) >= c.capacity {
		return false
	}
	c.frames = append(c.frames, frame)
	return true
}

func (c *fakeConn) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = reason
}

func (c *fakeConn) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

func (c *fakeConn) closeReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestBroadcast(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers one identical frame to each registered user", func(t *testing.T) {
		reg := registry.New(nil)
		alice, bob := domain.GenerateUserID(), domain.GenerateUserID()
		ca, cb := newFakeConn(8), newFakeConn(8)
		reg.Register(alice, ca)
		reg.Register(bob, cb)

		n, err := reg.Broadcast(ctx, []domain.UserID{alice, bob}, protocol.EventOnCreateChat, protocol.NewSuccess("hi"))

		require.NoError(t, err)
		assert.Equal(t, 2, n)
		require.Len(t, ca.received(), 1)
		require.Len(t, cb.received(), 1)
		assert.Equal(t, ca.received()[0], cb.received()[0])

		var frame protocol.Frame
		require.NoError(t, json.Unmarshal(ca.received()[0], &frame))
		assert.Equal(t, string(protocol.EventOnCreateChat), frame.Event)
		assert.JSONEq(t, `{"status":"SUCCESS","data":"hi"}`, string(frame.Payload))
	})

	t.Run("absent users are skipped silently", func(t *testing.T) {
		reg := registry.New(nil)
		alice := domain.GenerateUserID()
		ca := newFakeConn(8)
		reg.Register(alice, ca)

		n, err := reg.Broadcast(ctx, []domain.UserID{alice, domain.GenerateUserID()}, protocol.EventOnReceiveMessage, nil)

		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Len(t, ca.received(), 1)
	})

	t.Run("nobody online is not an error", func(t *testing.T) {
		reg := registry.New(nil)

		n, err := reg.Broadcast(ctx, []domain.UserID{domain.GenerateUserID()}, protocol.EventOnReceiveMessage, nil)

		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("duplicate ids receive a single frame", func(t *testing.T) {
		reg := registry.New(nil)
		alice := domain.GenerateUserID()
		ca := newFakeConn(8)
		reg.Register(alice, ca)

		n, err := reg.Broadcast(ctx, []domain.UserID{alice, alice}, protocol.EventOnReceiveMessage, nil)

		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Len(t, ca.received(), 1)
	})

	t.Run("full queue drops without affecting others", func(t *testing.T) {
		reg := registry.New(nil)
		slow, fast := domain.GenerateUserID(), domain.GenerateUserID()
		cs, cf := newFakeConn(0), newFakeConn(8)
		reg.Register(slow, cs)
		reg.Register(fast, cf)

		n, err := reg.Broadcast(ctx, []domain.UserID{slow, fast}, protocol.EventOnReceiveMessage, nil)

		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Empty(t, cs.received())
		assert.Len(t, cf.received(), 1)
	})

	t.Run("unencodable payload is an error", func(t *testing.T) {
		reg := registry.New(nil)

		_, err := reg.Broadcast(ctx, nil, protocol.EventOnError, make(chan int))

		assert.Error(t, err)
	})
}

func TestRegister_LastRegistrationWins(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(nil)
	alice := domain.GenerateUserID()
	first, second := newFakeConn(8), newFakeConn(8)

	require.True(t, reg.Register(alice, first))
	require.True(t, reg.Register(alice, second))

	_, err := reg.Broadcast(ctx, []domain.UserID{alice}, protocol.EventOnReceiveMessage, nil)
	require.NoError(t, err)

	assert.Empty(t, first.received())
	assert.Len(t, second.received(), 1)
	assert.Empty(t, first.closeReason(), "replaced connection stays open")
	assert.Equal(t, 1, reg.Len())
}

func TestUnregister(t *testing.T) {
	t.Run("removes the current connection", func(t *testing.T) {
		reg := registry.New(nil)
		alice := domain.GenerateUserID()
		c := newFakeConn(8)
		reg.Register(alice, c)

		assert.True(t, reg.Unregister(alice, c))
		_, ok := reg.Lookup(alice)
		assert.False(t, ok)
	})

	t.Run("stale connection cannot evict its replacement", func(t *testing.T) {
		reg := registry.New(nil)
		alice := domain.GenerateUserID()
		old, current := newFakeConn(8), newFakeConn(8)
		reg.Register(alice, old)
		reg.Register(alice, current)

		assert.False(t, reg.Unregister(alice, old))
		got, ok := reg.Lookup(alice)
		require.True(t, ok)
		assert.Equal(t, current.ID(), got.ID())
	})

	t.Run("unknown user is a no-op", func(t *testing.T) {
		reg := registry.New(nil)

		assert.False(t, reg.Unregister(domain.GenerateUserID(), newFakeConn(1)))
	})
}

func TestClose(t *testing.T) {
	reg := registry.New(nil)
	a, b := newFakeConn(8), newFakeConn(8)
	reg.Register(domain.GenerateUserID(), a)
	reg.Register(domain.GenerateUserID(), b)

	reg.Close("shutdown")

	assert.Equal(t, "shutdown", a.closeReason())
	assert.Equal(t, "shutdown", b.closeReason())
	assert.Zero(t, reg.Len())

	late := newFakeConn(8)
	assert.False(t, reg.Register(domain.GenerateUserID(), late))
	assert.NotEmpty(t, late.closeReason())

	// Idempotent.
	reg.Close("again")
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(nil)
	users := make([]domain.UserID, 16)
	for i := range users {
		users[i] = domain.GenerateUserID()
	}

	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := newFakeConn(1024)
			reg.Register(u, c)
			if i%2 == 0 {
				reg.Unregister(u, c)
			}
		}()
		go func() {
			defer wg.Done()
			_, err := reg.Broadcast(ctx, users, protocol.EventOnReceiveMessage, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, len(users)/2, reg.Len())
}
