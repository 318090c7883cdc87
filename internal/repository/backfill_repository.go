package repository

import (
	"context"
	"time"

	"github.com/gonghuaze999-design/QuantAgrify/internal/domain/models"
	"github.com/gonghuaze999-design/QuantAgrify/internal/domain/repository"
	pkgkafka "github.com/gonghuaze999-design/QuantAgrify/pkg/kafka"
)

// BarMessage is the broker wire format for one backfill bar.
type BarMessage struct {
	Symbol string  `json:"symbol"`
	TS     int64   `json:"ts"`
	Open   float64 `json:"o"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Close  float64 `json:"c"`
	Volume float64 `json:"v"`
}

// ToBar converts the wire format back to a domain bar.
func (m *BarMessage) ToBar() models.Bar {
	return models.Bar{
		Symbol: m.Symbol,
		Date:   time.Unix(m.TS, 0).UTC(),
		Open:   m.Open,
		High:   m.High,
		Low:    m.Low,
		Close:  m.Close,
		Volume: m.Volume,
	}
}

// NewBarMessage converts a domain bar to the wire format.
func NewBarMessage(b models.Bar) BarMessage {
	return BarMessage{
		Symbol: b.Symbol,
		TS:     b.Date.Unix(),
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,
	}
}

// KafkaBackfillPublisher routes gap-fill bars through the broker so the
// warehouse write happens off the request path.
type KafkaBackfillPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaBackfillPublisher creates a broker-backed backfill publisher.
func NewKafkaBackfillPublisher(producer *pkgkafka.Producer, topic string) repository.BackfillPublisher {
	return &KafkaBackfillPublisher{producer: producer, topic: topic}
}

func (p *KafkaBackfillPublisher) Publish(ctx context.Context, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(bars))
	for i, b := range bars {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(b.Symbol),
			Value: NewBarMessage(b),
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaBackfillPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
