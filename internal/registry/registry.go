// Package registry maps authenticated users to their live socket connection
// and fans server events out to them.
//
// A user has at most one registered connection; the most recent registration
// wins. Delivery is best effort: frames for users without a connection, or
// whose outbound queue is full, are dropped.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aelexs/directchat/internal/domain"
	"github.com/aelexs/directchat/pkg/protocol"
)

// Conn is one live client connection as seen by the registry.
type Conn interface {
	ID() domain.ConnectionID
	// Enqueue hands an encoded frame to the connection's writer without
	// blocking. It returns false if the frame was not accepted.
	Enqueue(frame []byte) bool
	// Close terminates the connection. It must be safe to call repeatedly.
	Close(reason string)
}

var (
	connectionsActive metric.Int64UpDownCounter
	framesDelivered   metric.Int64Counter
	framesDropped     metric.Int64Counter
)

func init() {
	m := otel.Meter("directchat/registry")

	connectionsActive, _ = m.Int64UpDownCounter("directchat_connections_active",
		metric.WithDescription("Registered socket connections"))
	framesDelivered, _ = m.Int64Counter("directchat_frames_enqueued_total",
		metric.WithDescription("Server frames accepted by a connection queue"))
	framesDropped, _ = m.Int64Counter("directchat_frames_dropped_total",
		metric.WithDescription("Server frames dropped by broadcast"))
}

// Registry is the user to connection map. It is safe for concurrent use.
type Registry struct {
	logger *slog.Logger

	mu     sync.RWMutex
	conns  map[domain.UserID]Conn
	closed bool
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger,
		conns:  make(map[domain.UserID]Conn),
	}
}

// Register binds conn to userID, replacing any earlier connection of that
// user. The replaced connection stays open but no longer receives
// broadcasts. After Close, Register closes conn immediately and returns false.
func (r *Registry) Register(userID domain.UserID, conn Conn) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		conn.Close("server shutting down")
		return false
	}
	prev, replaced := r.conns[userID]
	r.conns[userID] = conn
	r.mu.Unlock()

	if replaced {
		r.logger.Info("registry.connection_replaced",
			"user_id", userID.String(),
			"conn_id", conn.ID().String(),
			"previous_conn_id", prev.ID().String(),
		)
	} else {
		connectionsActive.Add(context.Background(), 1)
	}
	return true
}

// Unregister removes userID's entry if it still points at conn. A
// connection that was already replaced leaves the newer entry untouched.
func (r *Registry) Unregister(userID domain.UserID, conn Conn) bool {
	r.mu.Lock()
	current, ok := r.conns[userID]
	removed := ok && current.ID() == conn.ID()
	if removed {
		delete(r.conns, userID)
	}
	r.mu.Unlock()

	if removed {
		connectionsActive.Add(context.Background(), -1)
	}
	return removed
}

// Lookup returns the connection registered for userID.
func (r *Registry) Lookup(userID domain.UserID) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[userID]
	return c, ok
}

// Len returns the number of registered users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Broadcast encodes event and payload once and enqueues the frame on the
// connection of every listed user. Duplicate ids receive one frame. It
// returns the number of connections that accepted the frame.
func (r *Registry) Broadcast(ctx context.Context, userIDs []domain.UserID, event protocol.ServerEvent, payload any) (int, error) {
	frame, err := protocol.NewFrame(string(event), payload)
	if err != nil {
		return 0, fmt.Errorf("build %s frame: %w", event, err)
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return 0, fmt.Errorf("encode %s frame: %w", event, err)
	}

	userIDs = lo.Uniq(userIDs)

	r.mu.RLock()
	targets := make([]Conn, 0, len(userIDs))
	for _, id := range userIDs {
		if c, ok := r.conns[id]; ok {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	eventAttr := metric.WithAttributes(attribute.String("event", string(event)))

	if offline := len(userIDs) - len(targets); offline > 0 {
		framesDropped.Add(ctx, int64(offline), eventAttr, metric.WithAttributes(attribute.String("reason", "offline")))
	}

	delivered := 0
	for _, c := range targets {
		if c.Enqueue(data) {
			delivered++
			continue
		}
		framesDropped.Add(ctx, 1, eventAttr, metric.WithAttributes(attribute.String("reason", "queue_full")))
		r.logger.WarnContext(ctx, "registry.frame_dropped",
			"conn_id", c.ID().String(),
			"event", string(event),
			"error", domain.ErrSlowConsumer,
		)
	}
	framesDelivered.Add(ctx, int64(delivered), eventAttr)

	return delivered, nil
}

// Close closes every registered connection and rejects later registrations.
func (r *Registry) Close(reason string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	conns := lo.Values(r.conns)
	r.conns = make(map[domain.UserID]Conn)
	r.mu.Unlock()

	for _, c := range conns {
		c.Close(reason)
	}
	connectionsActive.Add(context.Background(), -int64(len(conns)))

	r.logger.Info("registry.closed", "connections", len(conns), "reason", reason)
}
