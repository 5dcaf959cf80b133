package state

import (
	"time"

	"github.com/doridoridoriand/pingalert/internal/ping"
)

// Status represents device health.
type Status string

const (
	// StatusNeutral is the initial status before the first probe of a monitoring run.
	StatusNeutral Status = "NEUTRAL"
	// StatusGreen means confirmed healthy.
	StatusGreen Status = "GREEN"
	// StatusYellow means recently recovered and cooling down.
	StatusYellow Status = "YELLOW"
	// StatusRed means confirmed down.
	StatusRed Status = "RED"
)

// Statuses lists every valid status in display order.
var Statuses = []Status{StatusNeutral, StatusGreen, StatusYellow, StatusRed}

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNeutral, StatusGreen, StatusYellow, StatusRed:
		return true
	}
	return false
}

const (
	DefaultRecoveryThreshold = 100
	DefaultAlertCooldown     = 1800 * time.Second
)

// Policy holds the tunables of the transition function.
type Policy struct {
	// RecoveryThreshold is the success streak a YELLOW device needs to become GREEN.
	RecoveryThreshold int
	// AlertCooldown is the minimum time between two "down" alerts for one device.
	AlertCooldown time.Duration
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{RecoveryThreshold: DefaultRecoveryThreshold, AlertCooldown: DefaultAlertCooldown}
}

// DeviceState is the per-device state machine value. A zero LastAlertAt means no alert was sent yet.
type DeviceState struct {
	Status        Status
	SuccessStreak int
	LastAlertAt   time.Time
}

// InitialState is the state every device starts a monitoring run with.
func InitialState() DeviceState {
	return DeviceState{Status: StatusNeutral}
}

// Effect is the side effect a transition asks the caller to perform.
type Effect int

const (
	EffectNone Effect = iota
	// EffectDown asks for the unreachable event to be logged and a "down" alert dispatched.
	EffectDown
	// EffectRecovered asks for a "back online" alert.
	EffectRecovered
)

func (e Effect) String() string {
	switch e {
	case EffectDown:
		return "down"
	case EffectRecovered:
		return "recovered"
	default:
		return "none"
	}
}

// Transition applies one probe result to cur and returns the next state and
// the side effect to perform.
func Transition(cur DeviceState, result ping.ProbeResult, now time.Time, policy Policy) (DeviceState, Effect) {
	next := cur
	if !cur.Status.Valid() {
		next = InitialState()
	}

	if !result.Reachable {
		next.Status = StatusRed
		next.SuccessStreak = 0
		if next.LastAlertAt.IsZero() || now.Sub(next.LastAlertAt) >= policy.AlertCooldown {
			next.LastAlertAt = now
			return next, EffectDown
		}
		return next, EffectNone
	}

	switch next.Status {
	case StatusRed:
		next.Status = StatusYellow
		next.SuccessStreak = 1
		return next, EffectRecovered
	case StatusYellow:
		next.SuccessStreak++
		if next.SuccessStreak >= policy.RecoveryThreshold {
			next.Status = StatusGreen
		}
	default:
		next.Status = StatusGreen
		next.SuccessStreak++
	}
	return next, EffectNone
}
