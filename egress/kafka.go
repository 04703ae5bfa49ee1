package egress

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/FerroO2000/ordo/internal/config"
	"github.com/FerroO2000/ordo/internal/telemetry"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the Kafka writer configuration.
const (
	DefaultKafkaConfigMaxAttempts  = 10
	DefaultKafkaConfigBatchSize    = 100
	DefaultKafkaConfigBatchTimeout = 10 * time.Millisecond
	DefaultKafkaConfigWriteTimeout = 10 * time.Second
	DefaultKafkaConfigRequiredAcks = kafka.RequireOne
)

// DefaultKafkaConfigBrokers is the default list of brokers.
var DefaultKafkaConfigBrokers = []string{"localhost:9092"}

// KafkaConfig structs contains the configuration for the Kafka writer.
type KafkaConfig struct {
	// A list of Kafka brokers to connect to.
	//
	// Default: localhost:9092
	Brokers []string

	// Topic is the topic the fragments are published to.
	// It is required.
	Topic string

	// Limit on how many attempts will be made to deliver a message.
	//
	// Default: 10.
	MaxAttempts int

	// Limit on how many messages will be buffered before being sent to a
	// partition.
	//
	// Default: 100.
	BatchSize int

	// Time limit on how often incomplete message batches will be flushed to
	// kafka.
	//
	// Default: 10ms.
	BatchTimeout time.Duration

	// Timeout for write operation performed by the Writer.
	//
	// Default: 10s.
	WriteTimeout time.Duration

	// Number of acknowledges from partition replicas required before receiving
	// a response to a produce request.
	//
	// Default: RequireOne.
	RequiredAcks kafka.RequiredAcks

	// Compression set the compression codec to be used to compress messages.
	Compression kafka.Compression

	// AllowAutoTopicCreation notifies writer to create topic if missing.
	AllowAutoTopicCreation bool
}

// NewKafkaConfig returns the default configuration for the Kafka writer.
func NewKafkaConfig(topic string) *KafkaConfig {
	return &KafkaConfig{
		Brokers:                DefaultKafkaConfigBrokers,
		Topic:                  topic,
		MaxAttempts:            DefaultKafkaConfigMaxAttempts,
		BatchSize:              DefaultKafkaConfigBatchSize,
		BatchTimeout:           DefaultKafkaConfigBatchTimeout,
		WriteTimeout:           DefaultKafkaConfigWriteTimeout,
		RequiredAcks:           DefaultKafkaConfigRequiredAcks,
		AllowAutoTopicCreation: true,
	}
}

// Validate checks the configuration.
func (c *KafkaConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckLen(ac, "Brokers", &c.Brokers, DefaultKafkaConfigBrokers)
	config.CheckRequired(ac, "Topic", c.Topic)

	config.CheckGreaterThanZero(ac, "MaxAttempts", &c.MaxAttempts, DefaultKafkaConfigMaxAttempts)

	config.CheckGreaterThanZero(ac, "BatchSize", &c.BatchSize, DefaultKafkaConfigBatchSize)

	config.CheckNotNegative(ac, "BatchTimeout", &c.BatchTimeout, DefaultKafkaConfigBatchTimeout)
	config.CheckNotNegative(ac, "WriteTimeout", &c.WriteTimeout, DefaultKafkaConfigWriteTimeout)
}

//////////////
//  WRITER  //
//////////////

// messageWriter is the part of [kafka.Writer] used by the Kafka writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaWriter publishes the encoded payloads to a Kafka topic, in order.
// The key of each message is the sequence number of the fragment,
// and the headers carry the trace context.
//
// Kafka messages cannot be retracted, so an aborted run leaves the
// already published messages on the topic.
type KafkaWriter[P any] struct {
	tel *telemetry.Telemetry
	cfg *KafkaConfig

	encode Encoder[P]

	newWriter func(cfg *KafkaConfig) messageWriter
	writer    messageWriter

	batch []kafka.Message

	publishedMessages atomic.Int64
}

// NewKafkaWriter returns a new Kafka writer.
func NewKafkaWriter[P any](encode Encoder[P], cfg *KafkaConfig) *KafkaWriter[P] {
	return &KafkaWriter[P]{
		tel: telemetry.NewTelemetry("egress", "kafka_writer"),
		cfg: cfg,

		encode: encode,

		newWriter: newKafkaWriter,
	}
}

func newKafkaWriter(cfg *KafkaConfig) messageWriter {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.RoundRobin{},
		MaxAttempts:            cfg.MaxAttempts,
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           cfg.RequiredAcks,
		Compression:            cfg.Compression,
		AllowAutoTopicCreation: cfg.AllowAutoTopicCreation,
	}
}

// Init validates the configuration.
func (kw *KafkaWriter[P]) Init(_ context.Context) error {
	if err := config.NewValidator(kw.tel).Validate(kw.cfg); err != nil {
		return err
	}

	kw.tel.NewCounter("published_messages", func() int64 { return kw.publishedMessages.Load() })

	return nil
}

// Open creates the Kafka writer.
func (kw *KafkaWriter[P]) Open(_ context.Context) error {
	kw.writer = kw.newWriter(kw.cfg)
	kw.batch = make([]kafka.Message, 0, kw.cfg.BatchSize)

	kw.tel.LogInfo("publishing", "topic", kw.cfg.Topic, "brokers", kw.cfg.Brokers)

	return nil
}

// Write adds the encoded payload to the current batch,
// which is published once full.
func (kw *KafkaWriter[P]) Write(ctx context.Context, seqNum uint64, payload P) error {
	ctx, span := kw.tel.NewTrace(ctx, "publish kafka message")
	defer span.End()

	value, err := kw.encode(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	span.SetAttributes(attribute.Int("value_size", len(value)))

	// Create the header that carries the trace
	headerCarrier := telemetry.NewKafkaHeaderCarrier(nil)
	kw.tel.InjectTrace(ctx, headerCarrier)

	kw.batch = append(kw.batch, kafka.Message{
		Key:     strconv.AppendUint(nil, seqNum, 10),
		Value:   value,
		Headers: headerCarrier.Headers(),
	})

	if len(kw.batch) < kw.cfg.BatchSize {
		return nil
	}

	return kw.flush(ctx)
}

func (kw *KafkaWriter[P]) flush(ctx context.Context) error {
	if len(kw.batch) == 0 {
		return nil
	}

	if err := kw.writer.WriteMessages(ctx, kw.batch...); err != nil {
		return err
	}

	kw.publishedMessages.Add(int64(len(kw.batch)))
	kw.batch = kw.batch[:0]

	return nil
}

// Commit publishes the last batch and closes the Kafka writer.
func (kw *KafkaWriter[P]) Commit(ctx context.Context) error {
	if err := kw.flush(ctx); err != nil {
		return errors.Join(err, kw.close())
	}

	return kw.close()
}

// Abort closes the Kafka writer.
func (kw *KafkaWriter[P]) Abort() error {
	return kw.close()
}

func (kw *KafkaWriter[P]) close() error {
	if kw.writer == nil {
		return nil
	}

	err := kw.writer.Close()
	kw.writer = nil
	kw.batch = nil

	return err
}
