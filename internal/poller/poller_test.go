package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_marketplace/internal/domain"
	"github.com/fjod/go_marketplace/internal/service"
	"github.com/fjod/go_marketplace/internal/storage"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"gotest.tools/v3/assert"
)

// fakeReader replays queued messages and then blocks until ctx is done.
type fakeReader struct {
	mu       sync.Mutex
	messages []kafkaGo.Message
	closed   bool
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafkaGo.Message, error) {
	f.mu.Lock()
	if len(f.messages) > 0 {
		m := f.messages[0]
		f.messages = f.messages[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()

	<-ctx.Done()
	return kafkaGo.Message{}, ctx.Err()
}

func (f *fakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func checkoutMessage(t *testing.T, userID string) kafkaGo.Message {
	payload, err := json.Marshal(map[string]interface{}{
		"checkout_id": "chId",
		"user_id":     userID,
	})
	require.NoError(t, err)
	return kafkaGo.Message{Key: []byte("chId"), Value: payload}
}

func seedCart(t *testing.T, registry *service.Registry, userID string) *service.CartStore {
	store, err := registry.Store(userID)
	require.NoError(t, err)
	require.NoError(t, store.AddToCart(context.Background(), domain.Product{ID: "1", Title: "Shirt", Price: 10}))
	return store
}

func TestPoller_ClearsCartOnCheckout(t *testing.T) {
	st := storage.NewMemoryStorage()
	registry := service.NewRegistry(st, "")
	cart := seedCart(t, registry, "123")
	other := seedCart(t, registry, "456")

	reader := &fakeReader{messages: []kafkaGo.Message{
		{Value: []byte("not json")},
		checkoutMessage(t, ""),
		checkoutMessage(t, "123"),
	}}
	poller := NewPollerWithReader(registry, reader)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poller.Run(ctx)

	require.Eventually(t, func() bool {
		return len(cart.Products()) == 0
	}, time.Second, 10*time.Millisecond)

	_, err := st.Get(context.Background(), registry.KeyFor("123"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, len(other.Products()), 1)
}

func TestPoller_Close(t *testing.T) {
	reader := &fakeReader{}
	NewPollerWithReader(service.NewRegistry(storage.NewMemoryStorage(), ""), reader).Close()
	assert.Assert(t, reader.closed)
}

func TestPoller_StopsOnCancel(t *testing.T) {
	poller := NewPollerWithReader(service.NewRegistry(storage.NewMemoryStorage(), ""), &fakeReader{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancel")
	}
}

func setupKafka(t *testing.T) (string, func()) {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestPoller_Kafka(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping kafka container test in short mode")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker, cleanupKafka := setupKafka(t)
	defer cleanupKafka()
	createTopic(t, broker, DefaultTopic)

	st := storage.NewMemoryStorage()
	registry := service.NewRegistry(st, "")
	cart := seedCart(t, registry, "123")

	poller := NewPoller(registry, DefaultTopic, broker)
	defer poller.Close()

	w := &kafkaGo.Writer{
		Addr:                   kafkaGo.TCP(broker),
		Topic:                  DefaultTopic,
		Balancer:               &kafkaGo.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	require.NoError(t, w.WriteMessages(ctx, checkoutMessage(t, "123")))
	w.Close()

	go poller.Run(ctx)
	require.Eventually(t, func() bool {
		_, err := st.Get(ctx, registry.KeyFor("123"))
		return errors.Is(err, storage.ErrNotFound) && len(cart.Products()) == 0
	}, 30*time.Second, 500*time.Millisecond)
}
