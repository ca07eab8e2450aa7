package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/NgigiN/stkpush/internal/payment"
)

// OutcomeMessage is the JSON document published for every finished push.
type OutcomeMessage struct {
	AccountNo   string    `json:"account_no"`
	PhoneNumber string    `json:"msisdn"`
	Amount      int64     `json:"amount"`
	Success     bool      `json:"success"`
	Receipt     string    `json:"mpesa_receipt,omitempty"`
	SyncStatus  string    `json:"sync_status,omitempty"`
	Error       string    `json:"error,omitempty"`
	ResolvedAt  time.Time `json:"resolved_at"`
}

// Producer publishes payment outcomes to Kafka.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	log      *zap.Logger
}

func NewProducer(brokers []string, topic string, log *zap.Logger) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to start kafka producer: %w", err)
	}
	return NewProducerFrom(producer, topic, log), nil
}

func NewProducerFrom(producer sarama.SyncProducer, topic string, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Producer{producer: producer, topic: topic, log: log}
}

// PaymentResolved implements payment.Observer. Messages are keyed by payer so
// a payer's outcomes stay ordered within a partition.
func (p *Producer) PaymentResolved(_ context.Context, ev payment.Event) {
	msg := OutcomeMessage{
		AccountNo:   ev.AccountNo,
		PhoneNumber: ev.PhoneNumber,
		Amount:      ev.Amount,
		Success:     ev.Succeeded(),
		ResolvedAt:  time.Now().UTC(),
	}
	if ev.Outcome != nil {
		msg.Receipt = ev.Outcome.Receipt
		msg.SyncStatus = ev.Outcome.SyncStatus
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		p.log.Error("failed to marshal outcome event", zap.Error(err))
		return
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.PhoneNumber),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		p.log.Error("failed to publish outcome event", zap.String("topic", p.topic), zap.Error(err))
		return
	}
	p.log.Debug("published outcome event",
		zap.String("topic", p.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
