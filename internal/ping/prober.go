package ping

import (
	"context"
	"fmt"
	"time"

	"github.com/doridoridoriand/pingalert/internal/log"
)

const (
	DefaultDeadline = 3 * time.Second
	DefaultTimeout  = 2 * time.Second
)

// ProbeResult is the outcome of one reachability check.
// LatencyMs is meaningful only when Reachable is true.
type ProbeResult struct {
	Reachable bool
	LatencyMs int
}

// Reachable returns a successful result with the given latency.
func Reachable(latencyMs int) ProbeResult {
	if latencyMs < 0 {
		latencyMs = 0
	}
	return ProbeResult{Reachable: true, LatencyMs: latencyMs}
}

// Unreachable returns a failed result.
func Unreachable() ProbeResult {
	return ProbeResult{}
}

// Prober checks one address within a bounded deadline and never fails the caller.
type Prober struct {
	pinger   Pinger
	deadline time.Duration
	timeout  time.Duration
	logger   *log.Logger
}

// NewProber wraps pinger. deadline bounds the whole call; timeout is handed to
// the pinger for the network round trip and is clamped to the deadline.
func NewProber(pinger Pinger, deadline, timeout time.Duration, logger *log.Logger) *Prober {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if timeout > deadline {
		timeout = deadline
	}
	return &Prober{pinger: pinger, deadline: deadline, timeout: timeout, logger: log.OrNop(logger)}
}

// Probe pings ip once. Timeouts, transport errors and pinger panics all map to
// an unreachable result. A pinger that ignores its context is abandoned at the deadline.
func (p *Prober) Probe(ctx context.Context, ip string) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Result{Success: false, Error: fmt.Errorf("pinger panic: %v", r)}
			}
		}()
		done <- p.pinger.Ping(ctx, ip, p.timeout)
	}()

	var res Result
	select {
	case res = <-done:
	case <-ctx.Done():
		res = Result{Success: false, Error: fmt.Errorf("probe deadline exceeded: %w", ctx.Err())}
	}

	p.logger.LogProbeResult(ip, res.Success, res.RTT, res.Error)
	if !res.Success {
		return Unreachable()
	}
	return Reachable(int(res.RTT / time.Millisecond))
}
