// Package queue wraps github.com/IBM/sarama as the topic-partitioned log of
// spec §6: the ingest RPC (C6) publishes through Producer, the dispatcher
// (C7) consumes through a ConsumerGroup. Partition assignment is left to
// sarama's default partitioner since the producer omits a key (spec §6
// "Key: producer omits it").
package queue

import (
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/kelpline/msgcore/internal/errs"
	"github.com/kelpline/msgcore/internal/types"
)

// ProducerConfig configures the synchronous producer (spec §4.6 step 3:
// "acks = all, idempotence enabled, with a bounded retry policy").
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	Acks         string // "all", "local", "none"
	MaxRetries   int
	RetryBackoff time.Duration
}

// Producer publishes Msg envelopes onto the queue topic.
type Producer struct {
	topic    string
	producer sarama.SyncProducer
	log      *zap.Logger
}

// NewProducer dials brokers and builds a synchronous, idempotent producer.
func NewProducer(cfg ProducerConfig, log *zap.Logger) (*Producer, error) {
	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = ackLevel(cfg.Acks)
	sc.Producer.Idempotent = true
	sc.Producer.Retry.Max = cfg.MaxRetries
	if cfg.RetryBackoff > 0 {
		sc.Producer.Retry.Backoff = cfg.RetryBackoff
	}
	sc.Producer.Return.Successes = true
	sc.Net.MaxOpenRequests = 1 // required by sarama when Idempotent is set

	sp, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindTransient, "queue: new producer")
	}
	return &Producer{topic: cfg.Topic, producer: sp, log: log}, nil
}

func ackLevel(acks string) sarama.RequiredAcks {
	switch acks {
	case "none":
		return sarama.NoResponse
	case "local":
		return sarama.WaitForLocal
	default:
		return sarama.WaitForAll
	}
}

// Publish serialises msg as UTF-8 JSON and publishes it to the configured
// topic (spec §6 "Record payload: UTF-8 JSON of Msg"). The publish error,
// if any, is returned to the caller without raising — callers implementing
// C6's SendMsg contract embed it directly into the response's err field
// (spec §4.6 step 4, Design Note §9(b)).
func (p *Producer) Publish(msg *types.Msg) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return errs.Wrap(err, errs.KindInternal, "queue: marshal msg")
	}
	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return errs.Wrap(err, errs.KindTransient, "queue: publish")
	}
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
