package events

import (
	"strconv"

	"github.com/IBM/sarama"
	json "github.com/goccy/go-json"
	pkgerrors "github.com/pkg/errors"
)

// Publisher broadcasts page events so every replica drops its own dump
// directory, not only the shared cache.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewPublisher(producer sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic}
}

func (p *Publisher) Publish(evt PageEvent) error {
	if p.producer == nil || p.topic == "" {
		return nil
	}
	if evt.EventType == "" {
		evt.EventType = EventPagePublished
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return pkgerrors.Wrap(err, "encode page event")
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatUint(evt.SiteID, 10)),
		Value: sarama.ByteEncoder(b),
	}
	_, _, err = p.producer.SendMessage(msg)
	return pkgerrors.Wrapf(err, "publish page event site=%d", evt.SiteID)
}
