package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/gosuda/audittrail/internal/domain"
)

// DefaultEventsChannel carries lifecycle events submitted by background producers.
const DefaultEventsChannel = "audittrail:events"

type PubSub struct {
	client *redis.Client
}

func New(ctx context.Context, addr, password string, db int) (*PubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping: %w", err)
	}

	return &PubSub{client: client}, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client) *PubSub {
	return &PubSub{client: client}
}

func (ps *PubSub) Close() error {
	if err := ps.client.Close(); err != nil {
		return fmt.Errorf("redis.PubSub.Close: %w", err)
	}
	return nil
}

func (ps *PubSub) Ping(ctx context.Context) error {
	if err := ps.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis.PubSub.Ping: %w", err)
	}
	return nil
}

func (ps *PubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ps.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis.PubSub.Publish: %w", err)
	}
	return nil
}

func (ps *PubSub) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	sub := ps.client.Subscribe(ctx, channel)

	// Wait for subscription confirmation.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis.PubSub.Subscribe: receive confirmation: %w", err)
	}

	out := make(chan []byte, 64)
	redisCh := sub.Channel()

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-redisCh:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	cleanup := func() {
		_ = sub.Close()
	}

	return out, cleanup, nil
}

// TrailChannel returns the Redis channel on which recorded entries of one
// entity type are fanned out.
func TrailChannel(entityType string) string {
	return "trail:" + entityType
}

// Publisher is the narrow publishing surface of PubSub.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// EntryPublisher fans recorded entries out to TrailChannel subscribers.
// It is registered with the capture engine as a post-write listener.
type EntryPublisher struct {
	pub Publisher
}

func NewEntryPublisher(pub Publisher) *EntryPublisher {
	return &EntryPublisher{pub: pub}
}

func (p *EntryPublisher) EntryRecorded(ctx context.Context, e *domain.Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("redis.EntryPublisher: marshal entry %d: %w", e.ID, err)
	}
	return p.pub.Publish(ctx, TrailChannel(e.EntityType), payload)
}
