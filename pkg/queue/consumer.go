package queue

import (
	"context"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/kelpline/msgcore/internal/errs"
)

// RecordHandler processes one deserialised record. Returning an error of
// KindInternal (a poison pill) still results in the offset being committed
// by Consumer — parse/invariant failures are logged and dropped, never
// blocking offset commit (spec §4.7 step 1, §7 "Internal invariants").
type RecordHandler func(ctx context.Context, value []byte) error

// Consumer wraps a single logical consumer group subscribed to one topic
// (spec §4.7 "Single logical consumer group subscribed to one topic").
type Consumer struct {
	group   sarama.ConsumerGroup
	topic   string
	handler RecordHandler
	log     *zap.Logger
}

// NewConsumer dials brokers and joins groupID, ready to consume topic.
func NewConsumer(brokers []string, groupID, topic string, handler RecordHandler, log *zap.Logger) (*Consumer, error) {
	sc := sarama.NewConfig()
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, sc)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindTransient, "queue: new consumer group")
	}
	return &Consumer{group: group, topic: topic, handler: handler, log: log}, nil
}

// Run blocks, re-joining the consumer group's rebalance loop until ctx is
// cancelled (the sarama idiom: ConsumeClaim returns on every rebalance, so
// the caller must call Consume again).
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.log.Warn("queue: consumer group error", zap.Error(err))
		}
	}()

	for {
		if err := c.group.Consume(ctx, []string{c.topic}, &groupHandler{handler: c.handler, log: c.log}); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errs.Wrap(err, errs.KindTransient, "queue: consume")
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type groupHandler struct {
	handler RecordHandler
	log     *zap.Logger
}

func (groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim processes one record at a time per partition (spec §5
// "Backpressure. Queue consumer processes one record at a time per
// partition.") and commits offset asynchronously after the handler returns
// (spec §4.7 step 9) via MarkMessage, which sarama flushes on its own
// interval rather than synchronously per record.
func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-sess.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.handler(sess.Context(), msg.Value); err != nil {
				h.log.Warn("queue: record handler error, committing anyway",
					zap.String("topic", msg.Topic), zap.Int32("partition", msg.Partition),
					zap.Int64("offset", msg.Offset), zap.Error(err))
			}
			sess.MarkMessage(msg, "")
		}
	}
}
