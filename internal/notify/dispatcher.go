package notify

import (
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campuslink/portal/internal/observability"
)

// Notification is one "tell user X about event Y" request. Delivery is
// best-effort: callers never learn about, nor wait on, the outcome.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Category  string    `json:"category"`
	ActionURL string    `json:"action_url,omitempty"`
	Priority  string    `json:"priority,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Dispatcher interface {
	Notify(n Notification)
}

// WebhookDispatcher queues notifications and posts them to the external
// notification service from worker goroutines. A full queue drops the event
// rather than blocking the triggering write.
type WebhookDispatcher struct {
	client  *resty.Client
	queue   chan Notification
	logger  *zap.Logger
	metrics *observability.Metrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewWebhookDispatcher(webhookURL string, queueSize, workers int, timeout time.Duration, logger *zap.Logger, metrics *observability.Metrics) *WebhookDispatcher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if workers <= 0 {
		workers = 1
	}

	d := &WebhookDispatcher{
		client: resty.New().
			SetBaseURL(webhookURL).
			SetTimeout(timeout).
			SetRetryCount(2).
			SetRetryWaitTime(200 * time.Millisecond),
		queue:   make(chan Notification, queueSize),
		logger:  logger,
		metrics: metrics,
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	return d
}

func (d *WebhookDispatcher) Notify(n Notification) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("dispatcher shut down, dropping notification",
			zap.String("user_id", n.UserID),
			zap.String("category", n.Category),
		)
		return
	}

	select {
	case d.queue <- n:
	default:
		d.logger.Warn("notification queue full, dropping event",
			zap.String("user_id", n.UserID),
			zap.String("category", n.Category),
		)
		d.record("dropped")
	}
}

func (d *WebhookDispatcher) worker() {
	defer d.wg.Done()

	for n := range d.queue {
		d.deliver(n)
	}
}

func (d *WebhookDispatcher) deliver(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(n).
		Post("")

	if err != nil {
		d.logger.Warn("notification delivery failed",
			zap.String("notification_id", n.ID),
			zap.String("user_id", n.UserID),
			zap.Error(err),
		)
		d.record("failed")
		return
	}

	if resp.IsError() {
		d.logger.Warn("notification rejected by webhook",
			zap.String("notification_id", n.ID),
			zap.String("user_id", n.UserID),
			zap.Int("status", resp.StatusCode()),
		)
		d.record("rejected")
		return
	}

	d.record("delivered")
}

func (d *WebhookDispatcher) record(status string) {
	if d.metrics != nil {
		d.metrics.RecordNotification(status)
	}
}

// Shutdown stops accepting new notifications and drains the queue until the
// context expires.
func (d *WebhookDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NopDispatcher discards everything. Used when no webhook is configured.
type NopDispatcher struct{}

func (NopDispatcher) Notify(Notification) {}
