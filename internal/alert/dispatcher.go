package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/doridoridoriand/pingalert/internal/config"
	"github.com/doridoridoriand/pingalert/internal/log"
)

const defaultChannelTimeout = 15 * time.Second

// Event is one alert message.
type Event struct {
	Subject string
	Body    string
}

// DownEvent builds the alert sent when device becomes unreachable.
func DownEvent(device config.Device) Event {
	return Event{
		Subject: fmt.Sprintf("%s is down", device.Name),
		Body:    fmt.Sprintf("%s (%s) is unreachable!", device.Name, device.IP),
	}
}

// RecoveredEvent builds the alert sent when a down device answers again.
func RecoveredEvent(device config.Device) Event {
	return Event{
		Subject: fmt.Sprintf("Device back online: %s", device.Name),
		Body:    fmt.Sprintf("%s (%s) is now reachable.", device.Name, device.IP),
	}
}

// TestEvent builds the message used to verify channel configuration.
func TestEvent() Event {
	return Event{Subject: "pingalert test", Body: "This is a test message from pingalert."}
}

// Channel delivers alerts over one transport.
type Channel interface {
	Name() string
	// Configured reports whether the channel has what it needs to send.
	// Unconfigured channels are skipped without error.
	Configured() bool
	Send(ctx context.Context, event Event) error
}

// ChannelError ties a delivery failure to its channel.
type ChannelError struct {
	Channel string
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Channel, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// Dispatcher fans alerts out to every configured channel.
type Dispatcher struct {
	channels []Channel
	timeout  time.Duration
	logger   *log.Logger
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds each channel's Send call.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// NewDispatcher creates a dispatcher over channels.
func NewDispatcher(logger *log.Logger, channels []Channel, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		channels: channels,
		timeout:  defaultChannelTimeout,
		logger:   log.OrNop(logger),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Channels returns the channels the dispatcher was built with.
func (d *Dispatcher) Channels() []Channel {
	return append([]Channel(nil), d.channels...)
}

// Dispatch sends subject/body to every configured channel concurrently and
// waits for all of them. Channel failures and panics are logged and combined
// into the returned error; one channel failing never stops the others.
func (d *Dispatcher) Dispatch(ctx context.Context, subject, body string) error {
	event := Event{Subject: subject, Body: body}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, ch := range d.channels {
		if ch == nil || !ch.Configured() {
			continue
		}
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			if err := d.send(ctx, ch, event); err != nil {
				d.logger.Warn("alert delivery failed", map[string]interface{}{
					"channel": ch.Name(),
					"subject": subject,
					"error":   err.Error(),
				})
				mu.Lock()
				errs = multierr.Append(errs, &ChannelError{Channel: ch.Name(), Err: err})
				mu.Unlock()
			}
		}(ch)
	}
	wg.Wait()
	return errs
}

func (d *Dispatcher) send(ctx context.Context, ch Channel, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return ch.Send(ctx, event)
}

// Errors splits a Dispatch error into its per-channel failures.
func Errors(err error) []error {
	return multierr.Errors(err)
}
