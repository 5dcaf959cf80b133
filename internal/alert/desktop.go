package alert

import (
	"context"

	"github.com/doridoridoriand/pingalert/internal/log"
)

// Notifier shows a local notification. It stands in for the OS toast API.
type Notifier func(title, message string) error

// DesktopChannel raises local notifications. Without a Notifier the alert is
// written to the log at warn level so it still shows up on the console.
type DesktopChannel struct {
	enabled  bool
	notifier Notifier
	logger   *log.Logger
}

// NewDesktopChannel creates a local notification channel.
func NewDesktopChannel(enabled bool, notifier Notifier, logger *log.Logger) *DesktopChannel {
	return &DesktopChannel{enabled: enabled, notifier: notifier, logger: log.OrNop(logger)}
}

func (c *DesktopChannel) Name() string { return "desktop" }

func (c *DesktopChannel) Configured() bool { return c.enabled }

func (c *DesktopChannel) Send(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.notifier != nil {
		return c.notifier(event.Subject, event.Body)
	}
	c.logger.Warn(event.Subject, map[string]interface{}{"alert": event.Body})
	return nil
}
