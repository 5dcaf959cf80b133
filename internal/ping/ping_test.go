package ping

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/doridoridoriand/pingalert/internal/config"
)

type stubPinger struct {
	result Result
	calls  int
}

func (s *stubPinger) Ping(ctx context.Context, addr string, timeout time.Duration) Result {
	s.calls++
	return s.result
}

func TestResolveIPValid(t *testing.T) {
	ipAddr, ip, err := resolveIP("127.0.0.1")
	if err != nil {
		t.Fatalf("expected valid IP, got error: %v", err)
	}
	if ipAddr == nil || ip.To4() == nil {
		t.Fatalf("expected resolved IPv4 address, got %v", ip)
	}
}

func TestResolveIPInvalid(t *testing.T) {
	if _, _, err := resolveIP("invalid@@"); err == nil {
		t.Fatalf("expected error for invalid address")
	}
}

func TestICMPSettings(t *testing.T) {
	cases := []struct {
		ip         string
		privileged bool
		network    string
	}{
		{"127.0.0.1", true, "ip4:icmp"},
		{"127.0.0.1", false, "udp4"},
		{"2001:db8::1", true, "ip6:ipv6-icmp"},
		{"2001:db8::1", false, "udp6"},
	}
	for _, tc := range cases {
		got := icmpSettings(net.ParseIP(tc.ip), tc.privileged)
		if got.network != tc.network {
			t.Fatalf("icmpSettings(%s, %v) network = %q, want %q", tc.ip, tc.privileged, got.network, tc.network)
		}
	}
}

func TestICMPMatchesReply(t *testing.T) {
	reply := func(id, seq int) []byte {
		msg := icmp.Message{Type: ipv4.ICMPTypeEchoReply, Body: &icmp.Echo{ID: id, Seq: seq, Data: []byte(echoData)}}
		b, err := msg.Marshal(nil)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return b
	}
	settings := icmpSettings(net.ParseIP("192.0.2.1"), true)

	privileged := &ICMPPinger{id: 42, privileged: true}
	if !privileged.matches(settings, reply(42, 7), 7) {
		t.Fatalf("expected matching reply")
	}
	if privileged.matches(settings, reply(43, 7), 7) {
		t.Fatalf("expected foreign identifier to be ignored")
	}
	if privileged.matches(settings, reply(42, 8), 7) {
		t.Fatalf("expected other sequence to be ignored")
	}

	unprivileged := &ICMPPinger{id: 42}
	if !unprivileged.matches(settings, reply(9999, 7), 7) {
		t.Fatalf("expected kernel-rewritten identifier to match on datagram sockets")
	}
	if unprivileged.matches(settings, []byte{0x01}, 7) {
		t.Fatalf("expected garbage to be ignored")
	}
}

func TestEffectiveDeadlineUsesContextDeadline(t *testing.T) {
	ctxDeadline := time.Now().Add(50 * time.Millisecond)
	ctx, cancel := context.WithDeadline(context.Background(), ctxDeadline)
	defer cancel()

	if deadline := effectiveDeadline(ctx, time.Second); !deadline.Equal(ctxDeadline) {
		t.Fatalf("expected context deadline %v, got %v", ctxDeadline, deadline)
	}
}

func TestEffectiveDeadlineUsesTimeout(t *testing.T) {
	start := time.Now()
	deadline := effectiveDeadline(context.Background(), 25*time.Millisecond)
	if deadline.Before(start) || deadline.After(start.Add(75*time.Millisecond)) {
		t.Fatalf("expected deadline within timeout window, got %v", deadline)
	}
}

func TestICMPPingerCancelledContext(t *testing.T) {
	pinger, err := NewICMPPinger()
	if err != nil {
		t.Fatalf("NewICMPPinger: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := pinger.Ping(ctx, "127.0.0.1", time.Second)
	if result.Success || result.Error == nil {
		t.Fatalf("expected failure due to cancelled context, got %+v", result)
	}
}

func TestIsPermissionError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{err: nil, want: false},
		{err: os.ErrPermission, want: true},
		{err: syscall.EPERM, want: true},
		{err: errors.New("listen ip4:icmp: Operation Not Permitted"), want: true},
		{err: errors.New("socket: permission denied"), want: true},
		{err: errors.New("network unreachable"), want: false},
	}
	for _, tc := range cases {
		if got := isPermissionError(tc.err); got != tc.want {
			t.Fatalf("isPermissionError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestFallbackPinger(t *testing.T) {
	cases := []struct {
		name          string
		primary       Result
		wantSecondary int
		wantSuccess   bool
	}{
		{"primary success", Result{Success: true, RTT: time.Millisecond}, 0, true},
		{"permission error", Result{Error: os.ErrPermission}, 1, true},
		{"other error", Result{Error: errors.New("network down")}, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			primary := &stubPinger{result: tc.primary}
			secondary := &stubPinger{result: Result{Success: true, RTT: 2 * time.Millisecond}}
			result := NewFallbackPinger(primary, secondary).Ping(context.Background(), "127.0.0.1", time.Second)
			if result.Success != tc.wantSuccess {
				t.Fatalf("expected success=%v, got %+v", tc.wantSuccess, result)
			}
			if primary.calls != 1 || secondary.calls != tc.wantSecondary {
				t.Fatalf("unexpected calls primary=%d secondary=%d", primary.calls, secondary.calls)
			}
		})
	}
}

func TestNewPingerModes(t *testing.T) {
	p, err := NewPinger(config.PingerExternal)
	if err != nil {
		t.Fatalf("external: %v", err)
	}
	if _, ok := p.(*ExternalPinger); !ok {
		t.Fatalf("expected *ExternalPinger, got %T", p)
	}

	p, err = NewPinger(config.PingerICMP)
	if err != nil {
		t.Fatalf("icmp: %v", err)
	}
	if _, ok := p.(*ICMPPinger); !ok {
		t.Fatalf("expected *ICMPPinger, got %T", p)
	}

	p, err = NewPinger(config.PingerAuto)
	if err != nil {
		t.Fatalf("auto: %v", err)
	}
	if _, ok := p.(*FallbackPinger); !ok {
		t.Fatalf("expected *FallbackPinger, got %T", p)
	}

	if _, err := NewPinger("smoke-signals"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
