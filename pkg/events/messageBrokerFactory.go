package events

import (
	"context"
	"fmt"

	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/config"
)

// NewBroker builds the configured publisher. Type "none" (or empty)
// disables event publishing entirely.
func NewBroker(ctx context.Context, cfg *config.BrokerSettings) (MessageBroker, error) {
	switch cfg.Type {
	case "rabbitmq":
		return NewRabbitMqBroker(ctx, cfg)
	case "gcp-pubsub":
		return NewPubSubClient(ctx, cfg)
	case "none", "":
		return noopBroker{}, nil
	default:
		return nil, fmt.Errorf("unsupported broker type: %s", cfg.Type)
	}
}

type noopBroker struct{}

func (noopBroker) Publish(context.Context, *AttemptEvent) error { return nil }
func (noopBroker) Close() error                                 { return nil }
