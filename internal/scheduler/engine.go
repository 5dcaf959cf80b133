// Package scheduler runs the monitoring cycles: one probe per device per
// interval, results applied to the state store, side effects fired on
// notable transitions.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/doridoridoriand/pingalert/internal/alert"
	"github.com/doridoridoriand/pingalert/internal/config"
	"github.com/doridoridoriand/pingalert/internal/devicelist"
	"github.com/doridoridoriand/pingalert/internal/log"
	"github.com/doridoridoriand/pingalert/internal/ping"
	"github.com/doridoridoriand/pingalert/internal/record"
	"github.com/doridoridoriand/pingalert/internal/state"
)

// DefaultInterval is the period between cycle launches.
const DefaultInterval = 5 * time.Second

var (
	ErrAlreadyRunning = errors.New("monitoring already running")
	ErrNotRunning     = errors.New("monitoring not running")
)

// Prober probes one device. Implementations never fail; errors are reported
// as an unreachable result.
type Prober interface {
	Probe(ctx context.Context, ip string) ping.ProbeResult
}

// Dispatcher delivers alert messages.
type Dispatcher interface {
	Dispatch(ctx context.Context, subject, body string) error
}

// Observer is told about every status change. It is called while the
// device's entry is locked, so calls for one device never overlap.
type Observer interface {
	OnStatusChanged(device config.Device, from, to state.Status)
}

// StopObserver is an optional Observer extension notified once monitoring
// has fully stopped.
type StopObserver interface {
	OnMonitoringStopped(devices []config.Device)
}

// CycleObserver is an optional Observer extension notified after each cycle launch.
type CycleObserver interface {
	OnCycle(launched, skipped int)
}

// Options configures an Engine. Only Prober is required.
type Options struct {
	Prober         Prober
	Policy         state.Policy
	Dispatcher     Dispatcher
	Latency        record.LatencyRecorder
	Events         record.EventLog
	Observers      []Observer
	Clock          clock.Clock
	Logger         *log.Logger
	Interval       time.Duration
	MaxConcurrency int
}

// Engine owns the device state store and the cycle loop.
type Engine struct {
	prober     Prober
	store      *state.Store
	dispatcher Dispatcher
	latency    record.LatencyRecorder
	events     record.EventLog
	observers  []Observer
	clock      clock.Clock
	logger     *log.Logger
	interval   time.Duration
	semaphore  chan struct{}

	mu          sync.Mutex
	running     bool
	stopping    bool
	devices     []config.Device
	outstanding map[string]bool
	stopCh      chan struct{}
	done        chan struct{}
	probeCtx    context.Context
	loopWG      sync.WaitGroup
	probeWG     sync.WaitGroup
}

// New creates an idle engine.
func New(opts Options) (*Engine, error) {
	if opts.Prober == nil {
		return nil, errors.New("scheduler: prober is required")
	}
	policy := opts.Policy
	if policy == (state.Policy{}) {
		policy = state.DefaultPolicy()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	e := &Engine{
		prober:      opts.Prober,
		store:       state.NewStore(policy),
		dispatcher:  opts.Dispatcher,
		latency:     opts.Latency,
		events:      opts.Events,
		observers:   append([]Observer(nil), opts.Observers...),
		clock:       clk,
		logger:      log.OrNop(opts.Logger),
		interval:    interval,
		outstanding: make(map[string]bool),
	}
	if opts.MaxConcurrency > 0 {
		e.semaphore = make(chan struct{}, opts.MaxConcurrency)
	}
	return e, nil
}

// Interval returns the cycle period.
func (e *Engine) Interval() time.Duration { return e.interval }

// Start resets every device to NEUTRAL, runs the first cycle immediately and
// then one cycle per interval until Stop is called or ctx is cancelled.
func (e *Engine) Start(ctx context.Context, devices []config.Device) error {
	if err := devicelist.Validate(devices); err != nil {
		return err
	}

	e.mu.Lock()
	for e.stopping {
		done := e.done
		e.mu.Unlock()
		<-done
		e.mu.Lock()
	}
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.running = true
	e.devices = append([]config.Device(nil), devices...)
	e.outstanding = make(map[string]bool, len(devices))
	e.stopCh = make(chan struct{})
	e.done = make(chan struct{})
	// In-flight probes and alerts outlive Stop and ctx; each probe is bounded by its own deadline.
	e.probeCtx = context.WithoutCancel(ctx)
	e.store.Reset(e.devices)
	ticker := e.clock.Ticker(e.interval)
	stopCh := e.stopCh
	e.loopWG.Add(1)
	e.mu.Unlock()

	e.logger.Info("monitoring started", map[string]interface{}{
		"devices":  len(devices),
		"interval": e.interval.String(),
	})

	e.cycle()
	go e.loop(ctx, ticker, stopCh)
	return nil
}

func (e *Engine) loop(ctx context.Context, ticker *clock.Ticker, stopCh chan struct{}) {
	defer e.loopWG.Done()
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			go e.Stop()
			return
		case <-ticker.C:
			e.cycle()
		}
	}
}

// cycle launches one probe per device whose previous probe has returned.
func (e *Engine) cycle() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	launched, skipped := 0, 0
	for _, dev := range e.devices {
		if e.outstanding[dev.IP] {
			skipped++
			e.logger.Debug("probe skipped, previous still outstanding", map[string]interface{}{
				"ip":   dev.IP,
				"name": dev.Name,
			})
			continue
		}
		e.outstanding[dev.IP] = true
		e.probeWG.Add(1)
		launched++
		go e.probe(e.probeCtx, dev)
	}
	e.mu.Unlock()

	for _, obs := range e.observers {
		if co, ok := obs.(CycleObserver); ok {
			co.OnCycle(launched, skipped)
		}
	}
}

func (e *Engine) probe(ctx context.Context, dev config.Device) {
	defer e.probeWG.Done()
	defer func() {
		e.mu.Lock()
		delete(e.outstanding, dev.IP)
		e.mu.Unlock()
	}()

	if e.semaphore != nil {
		e.semaphore <- struct{}{}
		defer func() { <-e.semaphore }()
	}

	result := e.prober.Probe(ctx, dev.IP)
	now := e.clock.Now()
	if result.Reachable && e.latency != nil {
		e.latency.Record(dev, result.LatencyMs, now)
	}
	e.store.Apply(dev, result, now, func(u state.Update) {
		e.handleUpdate(ctx, u)
	})
}

// handleUpdate runs with the device entry locked.
func (e *Engine) handleUpdate(ctx context.Context, u state.Update) {
	switch u.Effect {
	case state.EffectDown:
		e.logger.Warn("device down", map[string]interface{}{"ip": u.Device.IP, "name": u.Device.Name})
		if e.events != nil {
			e.events.LogUnreachable(u.Device, u.At)
		}
		e.dispatch(ctx, alert.DownEvent(u.Device))
	case state.EffectRecovered:
		e.logger.Info("device back online", map[string]interface{}{"ip": u.Device.IP, "name": u.Device.Name})
		e.dispatch(ctx, alert.RecoveredEvent(u.Device))
	}

	if u.Changed() {
		for _, obs := range e.observers {
			obs.OnStatusChanged(u.Device, u.Previous.Status, u.Current.Status)
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, ev alert.Event) {
	if e.dispatcher == nil {
		return
	}
	if err := e.dispatcher.Dispatch(ctx, ev.Subject, ev.Body); err != nil {
		e.logger.Debug("alert partially delivered", map[string]interface{}{
			"subject": ev.Subject,
			"error":   err.Error(),
		})
	}
}

// Stop prevents further cycles, waits for in-flight probes to finish and then
// notifies stop observers. Calling Stop on an idle engine is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		done, stopping := e.done, e.stopping
		e.mu.Unlock()
		if stopping {
			<-done
		}
		return
	}
	e.running = false
	e.stopping = true
	close(e.stopCh)
	done := e.done
	devices := e.devices
	e.mu.Unlock()

	e.loopWG.Wait()
	e.probeWG.Wait()

	e.logger.Info("monitoring stopped", map[string]interface{}{"devices": len(devices)})
	for _, obs := range e.observers {
		if so, ok := obs.(StopObserver); ok {
			so.OnMonitoringStopped(devices)
		}
	}

	e.mu.Lock()
	e.stopping = false
	e.mu.Unlock()
	close(done)
}

// Wait blocks until the current run has fully stopped. It returns
// ErrNotRunning when the engine was never started.
func (e *Engine) Wait() error {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done == nil {
		return ErrNotRunning
	}
	<-done
	return nil
}

// Running reports whether cycles are being scheduled.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Devices returns the device set of the current or last run.
func (e *Engine) Devices() []config.Device {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]config.Device(nil), e.devices...)
}

// Snapshot returns the display state of every device in list order. Once
// stopped, every device shows NEUTRAL; the counters themselves are kept until
// the next Start.
func (e *Engine) Snapshot() []state.DeviceStatus {
	running := e.Running()
	snap := e.store.Snapshot()
	if !running {
		for i := range snap {
			snap[i].Status = state.StatusNeutral
		}
	}
	return snap
}

// State returns the stored state for ip, regardless of display reset.
func (e *Engine) State(ip string) (state.DeviceStatus, bool) {
	return e.store.Get(ip)
}
