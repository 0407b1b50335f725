package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// NATSBridge mirrors bus events onto NATS subjects for cross-process
// observers (a separate WebSocket-fronting process, a metrics scraper).
// Unlike the in-process Subscription, the bridge is a bounded, drop-oldest
// consumer of its own queue: a stalled NATS connection must not grow
// memory without bound the way a stalled in-process subscriber is allowed
// to (see package doc). This is a bounded-drop back-pressure variant
// layered on top of the core's lossless queue, not a replacement for it.
type NATSBridge struct {
	conn        *nats.Conn
	subjectRoot string
	logger      *slog.Logger
	queue       chan Event
	done        chan struct{}
}

// NATSBridgeOption configures a NATSBridge.
type NATSBridgeOption func(*NATSBridge)

// WithBridgeLogger sets the logger used for publish failures.
func WithBridgeLogger(logger *slog.Logger) NATSBridgeOption {
	return func(b *NATSBridge) { b.logger = logger }
}

// WithQueueDepth overrides the bridge's bounded internal queue depth
// (default 256). When full, the oldest queued event is dropped to make
// room for the newest one.
func WithQueueDepth(depth int) NATSBridgeOption {
	return func(b *NATSBridge) {
		b.queue = make(chan Event, depth)
	}
}

// NewNATSBridge connects to a NATS server and returns a bridge that
// publishes to "<subjectRoot>.<event-name>". Call Start to attach it to a
// Bus subscription and Close to release the connection.
func NewNATSBridge(url, subjectRoot string, opts ...NATSBridgeOption) (*NATSBridge, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	b := &NATSBridge{
		conn:        conn,
		subjectRoot: subjectRoot,
		logger:      slog.Default(),
		queue:       make(chan Event, 256),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Start subscribes to bus and republishes every event it sees until ctx is
// cancelled or Close is called.
func (b *NATSBridge) Start(ctx context.Context, bus *Bus) {
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.done:
				return
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				b.enqueue(ev)
			}
		}
	}()
	go b.drain(ctx)
}

// enqueue applies the bounded drop-oldest policy.
func (b *NATSBridge) enqueue(ev Event) {
	select {
	case b.queue <- ev:
	default:
		select {
		case <-b.queue:
		default:
		}
		select {
		case b.queue <- ev:
		default:
		}
	}
}

func (b *NATSBridge) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case ev := <-b.queue:
			payload, err := json.Marshal(ev.Data)
			if err != nil {
				b.logger.Warn("marshal event for NATS bridge", "event", ev.Name, "error", err)
				continue
			}
			subject := b.subjectRoot + "." + ev.Name
			if err := b.conn.Publish(subject, payload); err != nil {
				b.logger.Warn("publish event to NATS", "subject", subject, "error", err)
			}
		}
	}
}

// Close stops the bridge and closes the underlying NATS connection.
func (b *NATSBridge) Close() {
	close(b.done)
	b.conn.Close()
}
