package invalidation

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ethpandaops/partcache/pkg/observability"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisListener buffers notifications published on a Redis channel until they are drained
type RedisListener struct {
	log     logrus.FieldLogger
	client  *redis.Client
	channel string
	limit   int

	mu       sync.Mutex
	pending  []Notification
	overflow bool

	pubsub *redis.PubSub
	wg     sync.WaitGroup
}

// NewRedisListener creates a listener for channel keeping at most limit notifications.
// When the buffer overflows the backlog collapses into one KindAll notification.
func NewRedisListener(log logrus.FieldLogger, client *redis.Client, channel string, limit int) *RedisListener {
	if limit <= 0 {
		limit = 1024
	}

	return &RedisListener{
		log:     log.WithField("service", "redis_listener"),
		client:  client,
		channel: channel,
		limit:   limit,
	}
}

// Start subscribes to the channel and begins buffering notifications
func (l *RedisListener) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.pubsub != nil {
		l.mu.Unlock()

		return ErrListenerRunning
	}

	pubsub := l.client.Subscribe(ctx, l.channel)
	l.pubsub = pubsub
	l.mu.Unlock()

	// wait for the subscription to be confirmed so no notification published afterwards is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()

		l.mu.Lock()
		l.pubsub = nil
		l.mu.Unlock()

		return err
	}

	l.wg.Add(1)

	go l.run(pubsub.Channel())

	l.log.WithField("channel", l.channel).Info("Listening for catalog change notifications")

	return nil
}

// Stop unsubscribes and waits for the receive loop to exit
func (l *RedisListener) Stop() error {
	l.mu.Lock()
	pubsub := l.pubsub
	l.pubsub = nil
	l.mu.Unlock()

	if pubsub == nil {
		return nil
	}

	err := pubsub.Close()
	l.wg.Wait()

	return err
}

func (l *RedisListener) run(ch <-chan *redis.Message) {
	defer l.wg.Done()

	for msg := range ch {
		n, err := DecodeNotification([]byte(msg.Payload))
		if err != nil {
			observability.RecordNotification("unknown", "invalid")
			l.log.WithError(err).Warn("Dropping malformed notification")

			continue
		}

		l.push(n)
	}
}

func (l *RedisListener) push(n Notification) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.overflow {
		observability.RecordNotification(string(n.Kind), "dropped")

		return
	}

	if len(l.pending) >= l.limit {
		l.pending = []Notification{NewNotification(KindAll, 0)}
		l.overflow = true

		observability.RecordNotification(string(n.Kind), "dropped")
		l.log.WithField("limit", l.limit).Warn("Notification buffer overflowed, falling back to full invalidation")

		return
	}

	l.pending = append(l.pending, n)
	observability.RecordNotification(string(n.Kind), "accepted")
}

// Drain implements Source
func (l *RedisListener) Drain() []Notification {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := l.pending
	l.pending = nil
	l.overflow = false

	return out
}

// Publish sends a notification to every listener of channel
func Publish(ctx context.Context, client *redis.Client, channel string, n Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(n)
	if err != nil {
		return err
	}

	return client.Publish(ctx, channel, data).Err()
}
