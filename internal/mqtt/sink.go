package mqtt

import (
	"context"
	"fmt"

	"cloudpico-humidity/internal/flow"
	"cloudpico-humidity/internal/humidity"
)

// Publisher is the part of Client the sink needs.
type Publisher interface {
	Publish(topic string, payload []byte, retained bool) error
}

// PublishSink sends every emission to the node's output topic.
type PublishSink struct {
	pub Publisher
}

func NewPublishSink(pub Publisher) *PublishSink {
	return &PublishSink{pub: pub}
}

func (s *PublishSink) Emit(_ context.Context, def flow.Definition, em *humidity.Emission) error {
	data, err := EncodeMessage(em.Message)
	if err != nil {
		return fmt.Errorf("encode emission: %w", err)
	}
	return s.pub.Publish(def.Output, data, false)
}

// Reject publishes nothing; rejections are logged and stored elsewhere.
func (s *PublishSink) Reject(context.Context, flow.Definition, humidity.Message, error) error {
	return nil
}
