package webhooks

import (
	"context"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

// KafkaHeaderBuilder builds Kafka message headers for an event.
type KafkaHeaderBuilder func(event Event) []kafka.Header

// KafkaForwarder mirrors every emitted event onto a Kafka topic, giving
// downstream consumers the same firehose that process-local stream handlers
// see. Attach it to a Stream; webhook delivery is unaffected either way.
type KafkaForwarder struct {
	logger        *zap.Logger
	producer      *kafka.Producer
	producerProps kafka.ConfigMap
	topic         string
	headerBuilder KafkaHeaderBuilder
}

// NewKafkaForwarder creates a forwarder with functional options. The
// bootstrap.servers producer property must be supplied via
// WithKafkaProducerProps.
func NewKafkaForwarder(logger *zap.Logger, opts ...KafkaForwarderOption) (*KafkaForwarder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &KafkaForwarder{
		logger: logger,
		producerProps: kafka.ConfigMap{
			"acks":               "all",
			"retries":            3,
			"linger.ms":          10,
			"enable.idempotence": true,
			"compression.type":   "snappy",
		},
		topic:         "webhook-events",
		headerBuilder: buildKafkaHeaders,
	}

	for _, opt := range opts {
		opt(f)
	}

	producer, err := kafka.NewProducer(&f.producerProps)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	f.producer = producer

	go f.handleDeliveryReports()

	return f, nil
}

// Attach subscribes the forwarder to the stream and returns the subscription
// token.
func (f *KafkaForwarder) Attach(stream *Stream) string {
	return stream.Subscribe(f.Forward)
}

// Forward is a StreamFunc: it produces the event onto the configured topic,
// keyed by event ID so replays of the same event land on the same partition.
func (f *KafkaForwarder) Forward(_ context.Context, event Event) error {
	body, err := event.Body()
	if err != nil {
		return err
	}

	f.logger.Debug("Forwarding event to Kafka",
		zap.String("event_id", event.ID),
		zap.String("event_kind", event.Kind.String()),
		zap.String("topic", f.topic))

	message := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &f.topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.ID),
		Value:          body,
		Headers:        f.headerBuilder(event),
		Timestamp:      event.Timestamp,
	}

	return f.producer.Produce(message, nil)
}

// Close flushes pending messages and closes the producer.
func (f *KafkaForwarder) Close() error {
	f.logger.Info("Closing kafka forwarder")
	f.producer.Flush(15 * 1000) // 15 sec
	f.producer.Close()
	return nil
}

// handleDeliveryReports drains the producer's events channel so failed
// produces are at least logged.
func (f *KafkaForwarder) handleDeliveryReports() {
	for e := range f.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				f.logger.Error("Kafka delivery failed",
					zap.String("topic", *ev.TopicPartition.Topic),
					zap.Error(ev.TopicPartition.Error))
			}
		case kafka.Error:
			f.logger.Error("Kafka error", zap.Error(ev))
		}
	}
}

// buildKafkaHeaders is the default header builder: the event identity plus
// its metadata.
func buildKafkaHeaders(event Event) []kafka.Header {
	headers := []kafka.Header{
		{Key: "event_id", Value: []byte(event.ID)},
		{Key: "event_kind", Value: []byte(event.Kind.String())},
	}
	for k, v := range event.Metadata {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return headers
}
