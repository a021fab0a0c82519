package poller

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"

	"github.com/fjod/go_marketplace/internal/service"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultTopic = "checkout-completed"
	groupID      = "cart-store-consumer"
)

// MessageReader is the part of *kafka.Reader the poller uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type checkoutEvent struct {
	UserID string `json:"user_id"`
}

// Poller empties a user's cart once their checkout has completed.
type Poller struct {
	registry *service.Registry
	reader   MessageReader
}

func NewPoller(registry *service.Registry, topic string, brokers ...string) *Poller {
	if topic == "" {
		topic = DefaultTopic
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return NewPollerWithReader(registry, reader)
}

func NewPollerWithReader(registry *service.Registry, reader MessageReader) *Poller {
	return &Poller{registry: registry, reader: reader}
}

// Run consumes until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.consumeAndClearCart(ctx)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		log.Printf("error closing reader: %v", err)
	}
}

func (p *Poller) consumeAndClearCart(ctx context.Context) {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("error reading message: %v", err)
		}
		return
	}

	var event checkoutEvent
	if errUnmarshal := json.Unmarshal(m.Value, &event); errUnmarshal != nil {
		log.Printf("error parsing message: %v", errUnmarshal)
		return
	}
	userID := strings.TrimSpace(event.UserID)
	if userID == "" {
		log.Println("missing or invalid user_id")
		return
	}

	store, err := p.registry.Store(userID)
	if err != nil {
		log.Printf("failed to resolve cart for %s: %v", userID, err)
		return
	}

	if errClear := store.Clear(ctx); errClear != nil {
		log.Printf("failed to clear cart for %s: %v", userID, errClear)
	}
}
