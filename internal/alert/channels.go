package alert

import (
	"github.com/doridoridoriand/pingalert/internal/config"
	"github.com/doridoridoriand/pingalert/internal/log"
)

// ChannelsFromConfig builds every known channel. Channels whose section is
// incomplete are still returned and report Configured() == false. notifier
// may be nil.
func ChannelsFromConfig(cfg config.NotifyOptions, notifier Notifier, logger *log.Logger) []Channel {
	return []Channel{
		NewDesktopChannel(cfg.Desktop.Enabled, notifier, logger),
		NewTelegramChannel(cfg.Telegram, nil),
		NewEmailChannel(cfg.Email),
	}
}
