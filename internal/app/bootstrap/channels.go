package bootstrap

import (
	"github.com/Nick077mp/whatsapp-crm-completo/internal/channels/facebook"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/channels/telegram"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/channels/whatsapp"
	appconfig "github.com/Nick077mp/whatsapp-crm-completo/internal/config"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/contacts"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/ingest"
	"github.com/Nick077mp/whatsapp-crm-completo/pkg/logging"
)

// Channels holds the per-channel delivery clients built from config.
// Unconfigured channels are nil and absent from the sender map.
type Channels struct {
	Bridge   *whatsapp.Client
	Facebook *facebook.Client
	Telegram *telegram.Client
	Senders  map[contacts.Channel]ingest.ChannelSender
}

// BuildChannels wires every channel whose credentials are configured.
// The WhatsApp bridge is the only channel that can fail to build; the
// others are plain token holders.
func BuildChannels(cfg *appconfig.Config, logger *logging.Logger) (*Channels, error) {
	if logger == nil {
		logger = logging.Default()
	}

	ch := &Channels{Senders: make(map[contacts.Channel]ingest.ChannelSender)}

	if cfg.BridgeURL != "" {
		bridge, err := whatsapp.NewClient(whatsapp.Config{
			BaseURL: cfg.BridgeURL,
			Timeout: cfg.BridgeTimeout,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		ch.Bridge = bridge
		ch.Senders[contacts.ChannelWhatsApp] = bridge
	}

	if cfg.FacebookPageAccessToken != "" {
		ch.Facebook = facebook.NewClient(cfg.FacebookPageAccessToken)
		ch.Senders[contacts.ChannelFacebook] = ch.Facebook
	}

	if cfg.TelegramBotToken != "" {
		ch.Telegram = telegram.NewClient(cfg.TelegramBotToken)
		ch.Senders[contacts.ChannelTelegram] = ch.Telegram
	}

	return ch, nil
}
