package channel

import (
	"fmt"

	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/config"
)

// New builds the configured channel implementation for one bot session.
func New(cfg config.ChannelSettings, session string) (Channel, error) {
	switch cfg.Type {
	case "wagateway":
		return NewWaGateway(cfg, session), nil
	default:
		return nil, fmt.Errorf("unsupported channel type: %s", cfg.Type)
	}
}
