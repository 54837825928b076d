package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisTransport publishes and subscribes CollabMessages on a single Redis
// channel, used for the server-duplex transport when the "server" side of a
// test or a small deployment is backed by Redis pub/sub rather than a real
// streaming API.
type RedisTransport struct {
	client  *redis.Client
	channel string

	pubsub *redis.PubSub
	ch     chan *Message

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewRedisTransport connects to addr and subscribes to channel. It pings the
// server with a bounded timeout before returning so a bad address fails at
// construction time.
func NewRedisTransport(addr, channel string) (*RedisTransport, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("transport: redis ping failed: %w", err)
	}

	sub := client.Subscribe(context.Background(), channel)

	ctx, cancel := context.WithCancel(context.Background())
	t := &RedisTransport{
		client:  client,
		channel: channel,
		pubsub:  sub,
		ch:      make(chan *Message, 256),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go t.loop(ctx)
	return t, nil
}

func (t *RedisTransport) loop(ctx context.Context) {
	defer close(t.done)
	in := t.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-in:
			if !ok {
				return
			}
			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				continue
			}
			select {
			case t.ch <- &msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Publish sends msg on the Redis channel. Every subscriber of the channel
// receives it, including this transport's own subscription, so the
// publisher's Messages channel also yields its own messages.
func (t *RedisTransport) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("transport: encode message: %w", err)
	}
	if err := t.client.Publish(ctx, t.channel, payload).Err(); err != nil {
		return fmt.Errorf("transport: redis publish: %w", err)
	}
	return nil
}

func (t *RedisTransport) Messages() <-chan *Message { return t.ch }

func (t *RedisTransport) Close() error {
	var closeErr error
	t.once.Do(func() {
		t.cancel()
		<-t.done
		closeErr = t.pubsub.Close()
		if err := t.client.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
		close(t.ch)
	})
	return closeErr
}
