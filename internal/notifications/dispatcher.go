package notifications

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/directory"
)

// ErrDelivery wraps channel failures. They are logged, never returned to workflow callers.
var ErrDelivery = errors.New("notification delivery failed")

// Channel delivers one notification copy to one user.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, d Delivery) error
}

// Presence is implemented by live channels that can only reach connected users.
type Presence interface {
	IsOnline(userID uuid.UUID) bool
}

// DispatcherConfig sizes the delivery queue.
type DispatcherConfig struct {
	Workers         int
	QueueSize       int
	DeliveryTimeout time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = 10 * time.Second
	}
	return c
}

// Dispatcher fans notifications out to channels on a bounded background queue.
// Notify never blocks on delivery and never reports failures to the caller.
type Dispatcher struct {
	channels []Channel
	cfg      DispatcherConfig
	metrics  *Metrics
	logger   *zap.Logger
	now      func() time.Time

	queue  chan Delivery
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type DispatcherOption func(*Dispatcher)

func WithDispatcherMetrics(m *Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithDispatcherLogger(l *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher starts cfg.Workers delivery workers. Call Close to drain them.
func NewDispatcher(cfg DispatcherConfig, channels []Channel, opts ...DispatcherOption) *Dispatcher {
	cfg = cfg.withDefaults()
	d := &Dispatcher{
		channels: channels,
		cfg:      cfg,
		logger:   zap.NewNop(),
		now:      time.Now,
		queue:    make(chan Delivery, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.worker()
	}
	return d
}

// Notify queues one delivery per distinct active recipient.
func (d *Dispatcher) Notify(ctx context.Context, recipients []directory.User, title, message, event string, payload map[string]interface{}) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("Notification dropped after shutdown", zap.String("event", event))
		return
	}

	now := d.now().UTC()
	seen := make(map[uuid.UUID]struct{}, len(recipients))
	for _, user := range recipients {
		if user.ID == uuid.Nil || !user.IsActive {
			continue
		}
		if _, dup := seen[user.ID]; dup {
			continue
		}
		seen[user.ID] = struct{}{}

		delivery := Delivery{
			NotificationID: uuid.New(),
			UserID:         user.ID,
			Name:           user.Name,
			Email:          user.Email,
			Title:          title,
			Message:        message,
			Event:          event,
			Payload:        maps.Clone(payload),
			CreatedAt:      now,
		}

		select {
		case d.queue <- delivery:
			d.metrics.queued()
		case <-ctx.Done():
			d.metrics.dropped()
			d.logger.Warn("Notification dropped, caller cancelled",
				zap.String("event", event),
				zap.String("user_id", user.ID.String()),
			)
			return
		default:
			d.metrics.dropped()
			d.logger.Warn("Notification queue full, dropping",
				zap.String("event", event),
				zap.String("user_id", user.ID.String()),
			)
		}
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for delivery := range d.queue {
		d.deliver(delivery)
	}
}

func (d *Dispatcher) deliver(delivery Delivery) {
	for _, ch := range d.channels {
		if p, ok := ch.(Presence); ok && !p.IsOnline(delivery.UserID) {
			d.metrics.skipped(ch.Name())
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.DeliveryTimeout)
		err := ch.Deliver(ctx, delivery)
		cancel()

		d.metrics.delivered(ch.Name(), err)
		if err != nil {
			d.logger.Warn("Notification channel failed",
				zap.String("channel", ch.Name()),
				zap.String("event", delivery.Event),
				zap.String("notification_id", delivery.NotificationID.String()),
				zap.String("user_id", delivery.UserID.String()),
				zap.Error(fmt.Errorf("%w: %w", ErrDelivery, err)),
			)
		}
	}
}

// Close stops accepting notifications and waits until queued ones are delivered
// or ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notification queue not drained: %w", ctx.Err())
	}
}
