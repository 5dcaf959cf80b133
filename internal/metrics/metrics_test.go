package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/doridoridoriand/pingalert/internal/config"
	"github.com/doridoridoriand/pingalert/internal/state"
)

type fakeSource []state.DeviceStatus

func (f fakeSource) Snapshot() []state.DeviceStatus { return f }

var snapshot = fakeSource{
	{Device: config.Device{IP: "10.0.0.1", Name: "Router"}, DeviceState: state.DeviceState{Status: state.StatusGreen, SuccessStreak: 12}},
	{Device: config.Device{IP: "10.0.0.2", Name: "Printer"}, DeviceState: state.DeviceState{Status: state.StatusRed}},
}

func TestCollectorDeviceStatus(t *testing.T) {
	c := NewCollector(snapshot)
	expected := `
# HELP pingalert_device_status Current status of each device, 1 for the active status.
# TYPE pingalert_device_status gauge
pingalert_device_status{ip="10.0.0.1",name="Router",status="GREEN"} 1
pingalert_device_status{ip="10.0.0.1",name="Router",status="NEUTRAL"} 0
pingalert_device_status{ip="10.0.0.1",name="Router",status="RED"} 0
pingalert_device_status{ip="10.0.0.1",name="Router",status="YELLOW"} 0
pingalert_device_status{ip="10.0.0.2",name="Printer",status="GREEN"} 0
pingalert_device_status{ip="10.0.0.2",name="Printer",status="NEUTRAL"} 0
pingalert_device_status{ip="10.0.0.2",name="Printer",status="RED"} 1
pingalert_device_status{ip="10.0.0.2",name="Printer",status="YELLOW"} 0
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "pingalert_device_status"); err != nil {
		t.Fatalf("unexpected device status metrics: %v", err)
	}
}

func TestCollectorAggregates(t *testing.T) {
	c := NewCollector(snapshot)
	expected := `
# HELP pingalert_device_success_streak Consecutive successful probes per device.
# TYPE pingalert_device_success_streak gauge
pingalert_device_success_streak{ip="10.0.0.1",name="Router"} 12
pingalert_device_success_streak{ip="10.0.0.2",name="Printer"} 0
# HELP pingalert_devices Number of devices per status.
# TYPE pingalert_devices gauge
pingalert_devices{status="GREEN"} 1
pingalert_devices{status="NEUTRAL"} 0
pingalert_devices{status="RED"} 1
pingalert_devices{status="YELLOW"} 0
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "pingalert_device_success_streak", "pingalert_devices"); err != nil {
		t.Fatalf("unexpected aggregate metrics: %v", err)
	}
}

func TestCollectorCountsObservedEvents(t *testing.T) {
	c := NewCollector(fakeSource{})
	dev := config.Device{IP: "10.0.0.1", Name: "Router"}
	c.OnStatusChanged(dev, state.StatusNeutral, state.StatusRed)
	c.OnStatusChanged(dev, state.StatusRed, state.StatusYellow)
	c.OnStatusChanged(dev, state.StatusYellow, state.StatusRed)
	c.OnCycle(3, 0)
	c.OnCycle(1, 2)

	if got := testutil.ToFloat64(c.changes.WithLabelValues("RED")); got != 2 {
		t.Fatalf("expected 2 RED changes, got %v", got)
	}
	if got := testutil.ToFloat64(c.cycles); got != 2 {
		t.Fatalf("expected 2 cycles, got %v", got)
	}
	if got := testutil.ToFloat64(c.skipped); got != 2 {
		t.Fatalf("expected 2 skipped probes, got %v", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	h, err := Handler(NewCollector(snapshot))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `pingalert_device_status{ip="10.0.0.2",name="Printer",status="RED"} 1`) {
		t.Fatalf("missing device status line:\n%s", body)
	}
	if !strings.Contains(body, "pingalert_cycles_total 0") {
		t.Fatalf("missing cycles counter:\n%s", body)
	}
}

func TestServeStopsOnContextCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	h, err := Handler(NewCollector(snapshot))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- Serve(ctx, addr, mux) }()

	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err = http.Get("http://" + addr + "/metrics")
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server never came up: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(data), "pingalert_devices") {
		t.Fatalf("unexpected body:\n%s", data)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeReportsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	err = Serve(context.Background(), ln.Addr().String(), http.NewServeMux())
	if err == nil || err == context.Canceled {
		t.Fatalf("expected listen error, got %v", err)
	}
}
