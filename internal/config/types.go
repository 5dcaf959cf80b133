package config

import "time"

// PingerMode selects the probe transport.
type PingerMode string

const (
	PingerAuto     PingerMode = "auto"
	PingerICMP     PingerMode = "icmp"
	PingerExternal PingerMode = "external"
)

// Valid reports whether m is a known mode.
func (m PingerMode) Valid() bool {
	switch m {
	case PingerAuto, PingerICMP, PingerExternal:
		return true
	}
	return false
}

// Device is a monitored endpoint. IP is the identity key.
type Device struct {
	IP   string `json:"ip" yaml:"ip"`
	Name string `json:"name" yaml:"name"`
}

// MonitorOptions controls the monitoring engine.
type MonitorOptions struct {
	Interval          time.Duration `yaml:"interval"`
	ProbeDeadline     time.Duration `yaml:"probe_deadline"`
	ProbeTimeout      time.Duration `yaml:"probe_timeout"`
	RecoveryThreshold int           `yaml:"recovery_threshold"`
	AlertCooldown     time.Duration `yaml:"alert_cooldown"`
	MaxConcurrency    int           `yaml:"max_concurrency"`
	Pinger            PingerMode    `yaml:"pinger"`
}

// Paths locates the files the monitor reads and appends to.
type Paths struct {
	ListsDir   string `yaml:"lists_dir"`
	EventLog   string `yaml:"event_log"`
	LatencyLog string `yaml:"latency_log"`
	HistoryDB  string `yaml:"history_db"`
}

// DesktopOptions configures the local notification channel.
type DesktopOptions struct {
	Enabled bool `yaml:"enabled"`
}

// TelegramOptions configures the chat-bot channel. Empty token or chat id disables it.
type TelegramOptions struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
	APIURL   string `yaml:"api_url"`
}

// EmailOptions configures the SMTP channel. Any empty field disables it.
type EmailOptions struct {
	SMTPServer string `yaml:"smtp_server"`
	SMTPPort   int    `yaml:"smtp_port"`
	Email      string `yaml:"email"`
	Password   string `yaml:"password"`
	Receiver   string `yaml:"receiver"`
}

// NotifyOptions groups the notification channels.
type NotifyOptions struct {
	Desktop  DesktopOptions  `yaml:"desktop"`
	Telegram TelegramOptions `yaml:"telegram"`
	Email    EmailOptions    `yaml:"email"`
}

// MetricsOptions configures the HTTP endpoint serving metrics and the event stream.
type MetricsOptions struct {
	Listen string `yaml:"listen"`
}

// UIOptions configures the terminal status board.
type UIOptions struct {
	Disable bool `yaml:"disable"`
}

// LogOptions configures the process logger.
type LogOptions struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Config is the parsed configuration file.
type Config struct {
	Monitor MonitorOptions `yaml:"monitor"`
	Paths   Paths          `yaml:"paths"`
	Notify  NotifyOptions  `yaml:"notify"`
	Metrics MetricsOptions `yaml:"metrics"`
	UI      UIOptions      `yaml:"ui"`
	Log     LogOptions     `yaml:"log"`
}

// CLIOverrides holds optional CLI values that override config file values.
type CLIOverrides struct {
	Interval       *time.Duration
	Timeout        *time.Duration
	MaxConcurrency *int
	Pinger         *PingerMode
	MetricsListen  *string
	UIDisable      *bool
	LogLevel       *string
}
