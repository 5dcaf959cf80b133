package state

import (
	"sync"
	"time"

	"github.com/doridoridoriand/pingalert/internal/config"
	"github.com/doridoridoriand/pingalert/internal/ping"
)

// DeviceStatus pairs a device with a copy of its state.
type DeviceStatus struct {
	Device config.Device
	DeviceState
}

// Update describes one applied transition.
type Update struct {
	Device   config.Device
	Previous DeviceState
	Current  DeviceState
	Effect   Effect
	At       time.Time
}

// Changed reports whether the status moved.
func (u Update) Changed() bool {
	return u.Previous.Status != u.Current.Status
}

type entry struct {
	mu     sync.Mutex
	device config.Device
	state  DeviceState
}

// Store holds per-device state keyed by IP. Each device has its own lock, so
// updates for different devices never contend beyond the map lookup.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	policy  Policy
}

// NewStore creates an empty store using policy for every transition.
func NewStore(policy Policy) *Store {
	if policy.RecoveryThreshold <= 0 {
		policy.RecoveryThreshold = DefaultRecoveryThreshold
	}
	if policy.AlertCooldown < 0 {
		policy.AlertCooldown = 0
	}
	return &Store{entries: make(map[string]*entry), policy: policy}
}

// Policy returns the transition policy in use.
func (s *Store) Policy() Policy {
	return s.policy
}

// Reset discards all state and registers devices with the initial state.
// Devices keep their given order; a repeated IP keeps its first position.
func (s *Store) Reset(devices []config.Device) {
	entries := make(map[string]*entry, len(devices))
	order := make([]string, 0, len(devices))
	for _, dev := range devices {
		if _, ok := entries[dev.IP]; ok {
			continue
		}
		entries[dev.IP] = &entry{device: dev, state: InitialState()}
		order = append(order, dev.IP)
	}

	s.mu.Lock()
	s.entries = entries
	s.order = order
	s.mu.Unlock()
}

// Apply runs the transition for device with result. hook, when non-nil, is
// called with the update while the device's lock is still held, so side
// effects for one device are serialized in the same order as its transitions.
// A device seen for the first time is registered with the initial state.
func (s *Store) Apply(device config.Device, result ping.ProbeResult, now time.Time, hook func(Update)) Update {
	e := s.lookupOrCreate(device)

	e.mu.Lock()
	defer e.mu.Unlock()

	next, effect := Transition(e.state, result, now, s.policy)
	update := Update{
		Device:   e.device,
		Previous: e.state,
		Current:  next,
		Effect:   effect,
		At:       now,
	}
	e.state = next
	if hook != nil {
		hook(update)
	}
	return update
}

// Get returns a copy of one device's state.
func (s *Store) Get(ip string) (DeviceStatus, bool) {
	s.mu.RLock()
	e, ok := s.entries[ip]
	s.mu.RUnlock()
	if !ok {
		return DeviceStatus{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return DeviceStatus{Device: e.device, DeviceState: e.state}, true
}

// Snapshot returns copies of every device state in registration order.
func (s *Store) Snapshot() []DeviceStatus {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.order))
	for _, ip := range s.order {
		entries = append(entries, s.entries[ip])
	}
	s.mu.RUnlock()

	out := make([]DeviceStatus, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, DeviceStatus{Device: e.device, DeviceState: e.state})
		e.mu.Unlock()
	}
	return out
}

// Len returns the number of registered devices.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *Store) lookupOrCreate(device config.Device) *entry {
	s.mu.RLock()
	e, ok := s.entries[device.IP]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[device.IP]; ok {
		return e
	}
	e = &entry{device: device, state: InitialState()}
	s.entries[device.IP] = e
	s.order = append(s.order, device.IP)
	return e
}
