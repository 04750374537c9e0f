package backplane

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexander-mattos/baileys/config"
	"github.com/alexander-mattos/baileys/internal/domain/hub/entities"
	pkgerrors "github.com/alexander-mattos/baileys/pkg/errors"
)

type fakeReader struct {
	messages chan kafkago.Message
	closed   chan struct{}
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		messages: make(chan kafkago.Message, 8),
		closed:   make(chan struct{}),
	}
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafkago.Message, error) {
	select {
	case msg := <-r.messages:
		return msg, nil
	case <-ctx.Done():
		return kafkago.Message{}, ctx.Err()
	case <-r.closed:
		return kafkago.Message{}, errors.New("reader closed")
	}
}

func (r *fakeReader) Close() error {
	close(r.closed)
	return nil
}

func testEnvelope() entities.Envelope {
	return entities.Envelope{
		Origin:   "instance-a",
		TenantID: "company-1",
		Kind:     entities.KindWhatsappSession,
		Payload:  json.RawMessage(`{"action":"update"}`),
		DedupKey: "s1",
	}
}

func TestNewKafka_Validation(t *testing.T) {
	_, err := NewKafka(&config.KafkaConfig{Topic: "t"}, zerolog.Nop())
	var cfgErr *pkgerrors.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	_, err = NewKafka(&config.KafkaConfig{Brokers: []string{"localhost:9092"}}, zerolog.Nop())
	require.ErrorAs(t, err, &cfgErr)
}

func TestKafka_PublishKeysByTenant(t *testing.T) {
	producer := mocks.NewAsyncProducer(t, nil)
	producer.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "broadcast" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "company-1" {
			return errors.New("unexpected key " + string(key))
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		env, err := decodeEnvelope(value)
		if err != nil {
			return err
		}
		if env.Kind != entities.KindWhatsappSession || env.Origin != "instance-a" {
			return errors.New("envelope mismatch")
		}
		return nil
	})

	k := newKafka(producer, newFakeReader(), "broadcast", zerolog.Nop())

	require.NoError(t, k.Publish(context.Background(), testEnvelope()))
	require.NoError(t, k.Close())
	assert.Equal(t, config.BackplaneKafka, k.Name())
}

func TestKafka_PublishAfterClose(t *testing.T) {
	producer := mocks.NewAsyncProducer(t, nil)
	k := newKafka(producer, newFakeReader(), "broadcast", zerolog.Nop())

	require.NoError(t, k.Ping(context.Background()))
	require.NoError(t, k.Close())
	require.NoError(t, k.Close())
	assert.Error(t, k.Publish(context.Background(), testEnvelope()))
	assert.Error(t, k.Ping(context.Background()))
}

func TestKafka_RunDeliversAndSkipsGarbage(t *testing.T) {
	producer := mocks.NewAsyncProducer(t, nil)
	reader := newFakeReader()
	k := newKafka(producer, reader, "broadcast", zerolog.Nop())
	defer k.Close()

	value, err := encodeEnvelope(testEnvelope())
	require.NoError(t, err)

	reader.messages <- kafkago.Message{Value: []byte("not json")}
	reader.messages <- kafkago.Message{Value: value}

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan entities.Envelope, 2)
	done := make(chan error, 1)
	go func() {
		done <- k.Run(ctx, func(env entities.Envelope) { got <- env })
	}()

	select {
	case env := <-got:
		assert.Equal(t, "company-1", env.TenantID)
		assert.JSONEq(t, `{"action":"update"}`, string(env.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("envelope not delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}
	assert.Empty(t, got)
}
