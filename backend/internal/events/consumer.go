package events

import (
	"context"
	"log"

	"github.com/IBM/sarama"
	json "github.com/goccy/go-json"
)

// Consumer is a sarama.ConsumerGroupHandler feeding page events into a
// Dispatcher. Offsets are marked once the event is queued; malformed
// messages are logged and skipped.
type Consumer struct {
	dispatcher *Dispatcher
}

var _ sarama.ConsumerGroupHandler = (*Consumer)(nil)

func NewConsumer(d *Dispatcher) *Consumer {
	return &Consumer{dispatcher: d}
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (c *Consumer) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			var evt PageEvent
			if err := json.Unmarshal(msg.Value, &evt); err != nil || evt.SiteID == 0 {
				log.Printf("events: skip message topic=%s partition=%d offset=%d err=%v",
					msg.Topic, msg.Partition, msg.Offset, err)
				sess.MarkMessage(msg, "")
				continue
			}
			if err := c.dispatcher.Enqueue(sess.Context(), evt); err != nil {
				// 不提交 offset，重平衡后重新消费
				return err
			}
			sess.MarkMessage(msg, "")
		case <-sess.Context().Done():
			return nil
		}
	}
}

// Run consumes topics until ctx is done, rejoining the group after every
// rebalance.
func Run(ctx context.Context, group sarama.ConsumerGroup, topics []string, h sarama.ConsumerGroupHandler) {
	for {
		if err := group.Consume(ctx, topics, h); err != nil {
			log.Printf("events: consume topics=%v err=%v", topics, err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}
