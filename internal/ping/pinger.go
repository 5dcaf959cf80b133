package ping

import (
	"context"
	"fmt"
	"time"

	"github.com/doridoridoriand/pingalert/internal/config"
)

// Result captures a single ping result.
type Result struct {
	RTT     time.Duration
	Success bool
	Error   error
}

// Pinger sends a single ping and returns the result.
type Pinger interface {
	Ping(ctx context.Context, addr string, timeout time.Duration) Result
}

// NewPinger builds the pinger selected by mode. Auto prefers raw ICMP, then
// datagram ICMP, then the system ping command, moving on only on permission errors.
func NewPinger(mode config.PingerMode) (Pinger, error) {
	switch mode {
	case config.PingerICMP:
		return NewICMPPinger()
	case config.PingerExternal:
		return NewExternalPinger(), nil
	case config.PingerAuto, "":
		icmpPinger, err := NewICMPPinger()
		if err != nil {
			return nil, err
		}
		unprivileged := NewFallbackPinger(NewUnprivilegedICMPPinger(), NewExternalPinger())
		return NewFallbackPinger(icmpPinger, unprivileged), nil
	default:
		return nil, fmt.Errorf("unknown pinger mode: %q", mode)
	}
}
