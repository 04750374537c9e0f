package backplane

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/alexander-mattos/baileys/config"
	"github.com/alexander-mattos/baileys/internal/domain/hub/deps"
	"github.com/alexander-mattos/baileys/internal/domain/hub/entities"
	pkgerrors "github.com/alexander-mattos/baileys/pkg/errors"
)

const (
	minBytes = 1
	maxBytes = 10e6

	readRetryDelay = time.Second
)

var _ deps.Backplane = (*Kafka)(nil)

type kafkaReader interface {
	ReadMessage(ctx context.Context) (kafkago.Message, error)
	Close() error
}

// Kafka relays envelopes through one topic.
// Every instance reads with its own consumer group so each one sees every envelope.
type Kafka struct {
	producer sarama.AsyncProducer
	reader   kafkaReader
	topic    string
	logger   zerolog.Logger

	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// NewKafka creates a sarama async producer and a kafka-go reader for the broadcast topic
func NewKafka(cfg *config.KafkaConfig, logger zerolog.Logger) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, pkgerrors.NewConfigurationError("no kafka brokers specified")
	}
	if cfg.Topic == "" {
		return nil, pkgerrors.NewConfigurationError("kafka broadcast topic is required")
	}

	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Compression = sarama.CompressionSnappy
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	sc.Producer.Retry.Max = 3
	sc.ClientID = "session-sync-backplane"
	sc.Version = sarama.V2_6_0_0

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	groupID := fmt.Sprintf("%s-%s", cfg.GroupPrefix, uuid.NewString())
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     groupID,
		MinBytes:    minBytes,
		MaxBytes:    maxBytes,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafkago.LastOffset,
	})

	logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Str("group_id", groupID).
		Msg("Kafka backplane initialized")

	return newKafka(producer, reader, cfg.Topic, logger), nil
}

func newKafka(producer sarama.AsyncProducer, reader kafkaReader, topic string, logger zerolog.Logger) *Kafka {
	k := &Kafka{
		producer: producer,
		reader:   reader,
		topic:    topic,
		logger:   logger.With().Str("component", "kafka_backplane").Logger(),
	}

	k.wg.Add(2)
	go k.handleSuccesses()
	go k.handleErrors()

	return k
}

// Name returns the driver name
func (k *Kafka) Name() string {
	return config.BackplaneKafka
}

// Ping fails once the backplane is closed
func (k *Kafka) Ping(_ context.Context) error {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.closed {
		return fmt.Errorf("kafka backplane is closed")
	}
	return nil
}

// Publish queues an envelope keyed by tenant, so one tenant's events keep their order
func (k *Kafka) Publish(ctx context.Context, env entities.Envelope) error {
	value, err := encodeEnvelope(env)
	if err != nil {
		return err
	}

	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.closed {
		return fmt.Errorf("kafka backplane is closed")
	}

	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(env.TenantID),
		Value: sarama.ByteEncoder(value),
	}

	select {
	case k.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while publishing: %w", ctx.Err())
	}
}

// Run reads the topic until ctx ends
func (k *Kafka) Run(ctx context.Context, deliver func(entities.Envelope)) error {
	for {
		msg, err := k.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			k.logger.Error().Err(err).Msg("Failed to read broadcast message")

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(readRetryDelay):
			}
			continue
		}

		env, err := decodeEnvelope(msg.Value)
		if err != nil {
			k.logger.Warn().Err(err).Int64("offset", msg.Offset).Msg("Skipping undecodable broadcast message")
			continue
		}

		deliver(env)
	}
}

func (k *Kafka) handleSuccesses() {
	defer k.wg.Done()

	for msg := range k.producer.Successes() {
		k.logger.Debug().
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("Broadcast published")
	}
}

func (k *Kafka) handleErrors() {
	defer k.wg.Done()

	for producerErr := range k.producer.Errors() {
		k.logger.Error().
			Err(producerErr.Err).
			Str("topic", producerErr.Msg.Topic).
			Msg("Failed to publish broadcast")
	}
}

// Close flushes the producer and stops the reader
func (k *Kafka) Close() error {
	k.closeOnce.Do(func() {
		k.mu.Lock()
		k.closed = true
		k.mu.Unlock()

		var errs []error
		if err := k.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close failed: %w", err))
		}
		k.wg.Wait()

		if err := k.reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("reader close failed: %w", err))
		}

		if len(errs) > 0 {
			k.closeErr = errs[0]
			k.logger.Error().Errs("errors", errs).Msg("Kafka backplane closed with errors")
			return
		}
		k.logger.Info().Msg("Kafka backplane closed")
	})

	return k.closeErr
}
