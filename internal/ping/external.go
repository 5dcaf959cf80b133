package ping

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"time"
)

// Matches "time=12.3 ms" (unix) and "time<1ms" (windows).
var timePattern = regexp.MustCompile(`time[=<]([0-9.]+)\s*ms`)

// unparsedRTT is reported when the command succeeded but printed no usable round trip time.
const unparsedRTT = time.Millisecond

// ExternalPinger invokes the system ping command for environments without raw socket access.
type ExternalPinger struct {
	goos string
}

// NewExternalPinger returns a ping implementation that shells out to ping.
func NewExternalPinger() *ExternalPinger {
	return &ExternalPinger{goos: runtime.GOOS}
}

// Ping runs the system ping command and parses the RTT from stdout.
func (p *ExternalPinger) Ping(ctx context.Context, addr string, timeout time.Duration) Result {
	if err := ctx.Err(); err != nil {
		return Result{Success: false, Error: err}
	}
	cmd := exec.CommandContext(ctx, "ping", pingArgs(p.goos, addr, timeout)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{Success: false, Error: fmt.Errorf("external ping timeout: %w", ctxErr)}
		}
		return Result{Success: false, Error: fmt.Errorf("external ping failed: %w", err)}
	}

	rtt := parseRTT(out)
	if rtt <= 0 {
		rtt = unparsedRTT
	}
	return Result{Success: true, RTT: rtt}
}

func pingArgs(goos, addr string, timeout time.Duration) []string {
	switch goos {
	case "windows":
		timeoutMs := maxInt(1, int(timeout.Milliseconds()))
		return []string{"-n", "1", "-w", strconv.Itoa(timeoutMs), addr}
	case "darwin":
		timeoutMs := maxInt(100, int(timeout.Milliseconds()))
		return []string{"-n", "-c", "1", "-W", strconv.Itoa(timeoutMs), addr}
	default:
		timeoutSec := maxInt(1, int(timeout.Seconds()+0.5))
		return []string{"-n", "-c", "1", "-W", strconv.Itoa(timeoutSec), addr}
	}
}

func parseRTT(output []byte) time.Duration {
	matches := timePattern.FindSubmatch(output)
	if len(matches) < 2 {
		return 0
	}
	value, err := strconv.ParseFloat(string(matches[1]), 64)
	if err != nil {
		return 0
	}
	return time.Duration(value * float64(time.Millisecond))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
