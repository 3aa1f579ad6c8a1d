package kafka

import (
	"context"
	"sort"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
)

// Producer publishes with idempotent, fully acknowledged writes.
type Producer struct {
	sync sarama.SyncProducer
}

func NewProducer(brokers []string, cfg *sarama.Config) (*Producer, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Return.Successes = true
	cfg.Net.MaxOpenRequests = 1
	sync, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return NewProducerFrom(sync), nil
}

// NewProducerFrom wraps an existing sync producer, e.g. a sarama mock.
func NewProducerFrom(sync sarama.SyncProducer) *Producer {
	return &Producer{sync: sync}
}

func (p *Producer) Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error {
	msg := &sarama.ProducerMessage{
		Topic:   topic,
		Key:     sarama.StringEncoder(key),
		Value:   sarama.ByteEncoder(payload),
		Headers: recordHeaders(ctx, headers),
	}
	_, _, err := p.sync.SendMessage(msg)
	return err
}

// recordHeaders copies headers in a stable order. A traceparent already in
// headers wins over the publishing context.
func recordHeaders(ctx context.Context, headers map[string]string) []sarama.RecordHeader {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	carrier := make(producerHeaderCarrier, 0, len(keys))
	for _, k := range keys {
		carrier.Set(k, headers[k])
	}
	if carrier.Get("traceparent") == "" {
		otel.GetTextMapPropagator().Inject(ctx, &carrier)
	}
	return carrier
}

func (p *Producer) Close() error {
	if p.sync == nil {
		return nil
	}
	return p.sync.Close()
}
