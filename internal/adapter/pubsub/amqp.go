// Package pubsub wires github.com/ThreeDotsLabs/watermill onto RabbitMQ via
// watermill-amqp/v3. It gives the report scheduler's inbound command bus
// and its outbound "report sent/failed" notifications a real transport
// instead of an in-process channel.
package pubsub

import (
	"github.com/ThreeDotsLabs/watermill"
	amqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
)

// NewPublisher opens a durable topic-exchange publisher against amqpURI.
// Used for report sent/failed notifications fanned out for cross-node
// dashboards/observability - never for scheduling authority itself, which
// stays local to the owning node's Scheduler.
func NewPublisher(amqpURI string, logger watermill.LoggerAdapter) (message.Publisher, error) {
	cfg := amqp.NewDurablePubSubConfig(amqpURI, nil)
	return amqp.NewPublisher(cfg, logger)
}

// NewSubscriber opens a durable queue subscriber against amqpURI - used for
// the reporting command bus. queueName is not used: with the durable queue
// config, the queue each Subscribe call consumes is named after its topic.
func NewSubscriber(amqpURI, queueName string, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	cfg := amqp.NewDurableQueueConfig(amqpURI)
	cfg.Consume.NoRequeueOnNack = true
	_ = queueName
	return amqp.NewSubscriber(cfg, logger)
}
