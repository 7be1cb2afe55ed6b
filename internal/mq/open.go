package mq

import (
	"context"
	"fmt"

	"github.com/field-notes/apiserver/config"
)

// Open connects to the broker selected by cfg.MQBackend. It returns nil, nil
// when no broker is configured, in which case relaying is synchronous.
func Open(ctx context.Context, cfg config.RelayConfig) (*MQ, error) {
	switch cfg.MQBackend {
	case "":
		return nil, nil
	case config.MQRabbitMQ:
		client, err := NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("connect to rabbitmq: %w", err)
		}
		return New(client), nil
	case config.MQPubSub:
		client, err := NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("connect to pubsub: %w", err)
		}
		return New(client), nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.MQBackend)
	}
}
