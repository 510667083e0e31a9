// Package notify feeds impressions published on a Redis channel into ingestion.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	v1 "github.com/aevon-lab/adselect/internal/api/v1"
	"github.com/aevon-lab/adselect/internal/core/stats"
	"github.com/aevon-lab/adselect/internal/core/storage"
	"github.com/redis/go-redis/v9"
)

// Acceptor is satisfied by *ingestion.Service.
type Acceptor interface {
	Accept(ctx context.Context, imp *v1.Impression) (stats.DeltaResult, error)
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// Subscriber consumes one Redis pub/sub channel. Every message is a JSON impression,
// the same body POST /v1/impressions accepts.
type Subscriber struct {
	client   *redis.Client
	channel  string
	acceptor Acceptor

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewSubscriber(opts Options, acceptor Acceptor) *Subscriber {
	return &Subscriber{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		channel:  opts.Channel,
		acceptor: acceptor,
	}
}

// Start pings Redis, subscribes and consumes messages in the background until Close.
func (s *Subscriber) Start(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", s.client.Options().Addr, err)
	}

	ctx, s.cancel = context.WithCancel(ctx)
	pubsub := s.client.Subscribe(ctx, s.channel)
	// Wait for the subscription confirmation so a bad channel fails startup.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		s.cancel()
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}

	slog.Info("[Notify] Subscribed", "addr", s.client.Options().Addr, "channel", s.channel)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer pubsub.Close()
		s.consume(ctx, pubsub.Channel())
	}()
	return nil
}

func (s *Subscriber) consume(ctx context.Context, messages <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			_ = s.Handle(ctx, []byte(msg.Payload))
		}
	}
}

// Handle decodes and accepts one message. Failures are logged and returned; the
// subscription itself never stops on a bad message.
func (s *Subscriber) Handle(ctx context.Context, payload []byte) error {
	imp, err := Decode(payload)
	if err != nil {
		slog.Warn("[Notify] Dropping malformed message", "channel", s.channel, "error", err)
		return err
	}

	res, err := s.acceptor.Accept(ctx, imp)
	switch {
	case err == nil:
		slog.Debug("[Notify] Impression accepted", "event_id", imp.EventID, "applied", res.Applied)
		return nil
	case errors.Is(err, storage.ErrDuplicate):
		// Publishers retry; a redelivered event is expected.
		slog.Debug("[Notify] Duplicate impression ignored", "event_id", imp.EventID)
		return err
	case errors.Is(err, v1.ErrValidation):
		slog.Warn("[Notify] Rejected impression", "event_id", imp.EventID, "error", err)
		return err
	default:
		slog.Error("[Notify] Failed to accept impression", "event_id", imp.EventID, "error", err)
		return err
	}
}

// Decode parses one message payload.
func Decode(payload []byte) (*v1.Impression, error) {
	var imp v1.Impression
	if err := json.Unmarshal(payload, &imp); err != nil {
		return nil, fmt.Errorf("decode impression: %w", err)
	}
	return &imp, nil
}

// Close stops consuming and closes the Redis client.
func (s *Subscriber) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return s.client.Close()
}
