package publish

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/kmarket/odds-stream/pkg/contracts/events"
)

// Producer publica eventos de override no Kafka para consumidores
// downstream (analytics, trilha de auditoria externa).
type Producer struct {
	w *kafka.Writer
}

func NewProducer(brokers string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *Producer) PublishOddsOverride(ctx context.Context, e events.OddsOverride) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(e.MarketID, 10)),
		Value: b,
		Time:  time.Now(),
	})
}

func (p *Producer) Close() error { return p.w.Close() }
