package alert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doridoridoriand/pingalert/internal/config"
)

const telegramTimeout = 10 * time.Second

// TelegramChannel posts alerts through the Telegram bot API.
type TelegramChannel struct {
	cfg    config.TelegramOptions
	client *http.Client
}

// NewTelegramChannel creates a chat-bot channel. A nil client gets a 10s timeout client.
func NewTelegramChannel(cfg config.TelegramOptions, client *http.Client) *TelegramChannel {
	if client == nil {
		client = &http.Client{Timeout: telegramTimeout}
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.telegram.org"
	}
	return &TelegramChannel{cfg: cfg, client: client}
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Configured() bool {
	return c.cfg.BotToken != "" && c.cfg.ChatID != ""
}

// Send posts "subject: body" to the configured chat.
func (c *TelegramChannel) Send(ctx context.Context, event Event) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(c.cfg.APIURL, "/"), c.cfg.BotToken)
	form := url.Values{
		"chat_id": {c.cfg.ChatID},
		"text":    {fmt.Sprintf("%s: %s", event.Subject, event.Body)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request: %w", redactToken(err, c.cfg.BotToken))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram returned %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// redactToken keeps the bot token out of logged transport errors, which embed the request URL.
func redactToken(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<redacted>"))
}
