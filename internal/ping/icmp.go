package ping

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const echoData = "pingalert"

// ICMPPinger sends ICMP echo requests. Privileged pingers use raw sockets;
// unprivileged ones use datagram ICMP sockets (Linux ping_group_range, macOS).
type ICMPPinger struct {
	id         int
	seq        uint32
	privileged bool
}

// NewICMPPinger initializes a raw socket pinger with a process-scoped identifier.
func NewICMPPinger() (*ICMPPinger, error) {
	return &ICMPPinger{id: os.Getpid() & 0xffff, privileged: true}, nil
}

// NewUnprivilegedICMPPinger returns a pinger using datagram ICMP sockets.
func NewUnprivilegedICMPPinger() *ICMPPinger {
	return &ICMPPinger{id: os.Getpid() & 0xffff}
}

// Ping sends one ICMP echo request and waits for the matching reply.
func (p *ICMPPinger) Ping(ctx context.Context, addr string, timeout time.Duration) Result {
	if err := ctx.Err(); err != nil {
		return Result{Success: false, Error: err}
	}

	ipAddr, ip, err := resolveIP(addr)
	if err != nil {
		return Result{Success: false, Error: err}
	}

	settings := icmpSettings(ip, p.privileged)
	conn, err := icmp.ListenPacket(settings.network, "")
	if err != nil {
		return Result{Success: false, Error: err}
	}
	defer conn.Close()

	seq := int(atomic.AddUint32(&p.seq, 1) & 0xffff)
	msg := icmp.Message{
		Type: settings.requestType,
		Body: &icmp.Echo{ID: p.id, Seq: seq, Data: []byte(echoData)},
	}
	payload, err := msg.Marshal(nil)
	if err != nil {
		return Result{Success: false, Error: err}
	}

	if err := conn.SetDeadline(effectiveDeadline(ctx, timeout)); err != nil {
		return Result{Success: false, Error: err}
	}

	var dst net.Addr = ipAddr
	if !p.privileged {
		dst = &net.UDPAddr{IP: ip, Zone: ipAddr.Zone}
	}

	start := time.Now()
	if _, err := conn.WriteTo(payload, dst); err != nil {
		return Result{Success: false, Error: err}
	}

	buf := make([]byte, 1500)
	for {
		if err := ctx.Err(); err != nil {
			return Result{Success: false, Error: err}
		}
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return Result{Success: false, Error: fmt.Errorf("ping timeout: %w", err)}
			}
			return Result{Success: false, Error: err}
		}
		if p.matches(settings, buf[:n], seq) {
			return Result{Success: true, RTT: time.Since(start)}
		}
	}
}

// matches reports whether packet is the echo reply for seq. Datagram sockets
// have their echo identifier rewritten by the kernel, so only seq is compared there.
func (p *ICMPPinger) matches(settings icmpConfig, packet []byte, seq int) bool {
	reply, err := icmp.ParseMessage(settings.protocol, packet)
	if err != nil || reply.Type != settings.replyType {
		return false
	}
	body, ok := reply.Body.(*icmp.Echo)
	if !ok || body.Seq != seq {
		return false
	}
	return !p.privileged || body.ID == p.id
}

func resolveIP(addr string) (*net.IPAddr, net.IP, error) {
	ipAddr, err := net.ResolveIPAddr("ip", addr)
	if err != nil {
		return nil, nil, err
	}
	if ipAddr.IP == nil {
		return nil, nil, fmt.Errorf("invalid IP address: %s", addr)
	}
	return ipAddr, ipAddr.IP, nil
}

type icmpConfig struct {
	network     string
	protocol    int
	requestType icmp.Type
	replyType   icmp.Type
}

func icmpSettings(ip net.IP, privileged bool) icmpConfig {
	if ip.To4() != nil {
		network := "udp4"
		if privileged {
			network = "ip4:icmp"
		}
		return icmpConfig{network, ipv4.ICMPTypeEcho.Protocol(), ipv4.ICMPTypeEcho, ipv4.ICMPTypeEchoReply}
	}
	network := "udp6"
	if privileged {
		network = "ip6:ipv6-icmp"
	}
	return icmpConfig{network, ipv6.ICMPTypeEchoRequest.Protocol(), ipv6.ICMPTypeEchoRequest, ipv6.ICMPTypeEchoReply}
}

func effectiveDeadline(ctx context.Context, timeout time.Duration) time.Time {
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		return ctxDeadline
	}
	return deadline
}
