package state

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/doridoridoriand/pingalert/internal/config"
	"github.com/doridoridoriand/pingalert/internal/ping"
)

func toResults(outcomes []bool) []ping.ProbeResult {
	out := make([]ping.ProbeResult, len(outcomes))
	for i, ok := range outcomes {
		if ok {
			out[i] = ping.Reachable(i % 50)
		} else {
			out[i] = ping.Unreachable()
		}
	}
	return out
}

func TestPropertyTransitionInvariants(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	props := gopter.NewProperties(params)

	props.Property("status is always one of the four known values", prop.ForAll(
		func(outcomes []bool) bool {
			cur := InitialState()
			for i, res := range toResults(outcomes) {
				cur, _ = Transition(cur, res, t0.Add(time.Duration(i)*5*time.Second), DefaultPolicy())
				if !cur.Status.Valid() || cur.SuccessStreak < 0 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
	))

	props.Property("a failure always yields RED with a zero streak", prop.ForAll(
		func(outcomes []bool) bool {
			cur := InitialState()
			for i, res := range toResults(outcomes) {
				cur, _ = Transition(cur, res, t0.Add(time.Duration(i)*time.Second), DefaultPolicy())
				if !res.Reachable && (cur.Status != StatusRed || cur.SuccessStreak != 0) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
	))

	props.Property("successes from NEUTRAL stay GREEN", prop.ForAll(
		func(n int) bool {
			cur := InitialState()
			for i := 0; i < n; i++ {
				var effect Effect
				cur, effect = Transition(cur, ping.Reachable(1), t0, DefaultPolicy())
				if cur.Status != StatusGreen || effect != EffectNone || cur.SuccessStreak != i+1 {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 300),
	))

	props.Property("recovery from RED takes exactly threshold successes", prop.ForAll(
		func(threshold int) bool {
			policy := Policy{RecoveryThreshold: threshold, AlertCooldown: DefaultAlertCooldown}
			cur, _ := Transition(InitialState(), ping.Unreachable(), t0, policy)
			cur, effect := Transition(cur, ping.Reachable(1), t0, policy)
			if cur.Status != StatusYellow || cur.SuccessStreak != 1 || effect != EffectRecovered {
				return false
			}
			for streak := 2; streak < threshold; streak++ {
				cur, _ = Transition(cur, ping.Reachable(1), t0, policy)
				if cur.Status != StatusYellow {
					return false
				}
			}
			cur, _ = Transition(cur, ping.Reachable(1), t0, policy)
			return cur.Status == StatusGreen
		},
		gen.IntRange(1, 150),
	))

	props.Property("down alerts are spaced by at least the cooldown", prop.ForAll(
		func(gapsSec []int) bool {
			policy := DefaultPolicy()
			cur := InitialState()
			now := t0
			var lastAlert time.Time
			for _, gap := range gapsSec {
				now = now.Add(time.Duration(gap) * time.Second)
				var effect Effect
				cur, effect = Transition(cur, ping.Unreachable(), now, policy)
				if effect == EffectDown {
					if !lastAlert.IsZero() && now.Sub(lastAlert) < policy.AlertCooldown {
						return false
					}
					lastAlert = now
				} else if lastAlert.IsZero() || now.Sub(lastAlert) >= policy.AlertCooldown {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 2000)),
	))

	props.Property("a RED device recovering always emits exactly one recovered effect", prop.ForAll(
		func(gapSec int) bool {
			cur, _ := Transition(InitialState(), ping.Unreachable(), t0, DefaultPolicy())
			_, effect := Transition(cur, ping.Reachable(3), t0.Add(time.Duration(gapSec)*time.Second), DefaultPolicy())
			return effect == EffectRecovered
		},
		gen.IntRange(0, 5000),
	))

	props.TestingRun(t, gopter.ConsoleReporter(false))
}

// Concurrent updates to 50 devices with staggered completion must match
// applying each device's own results sequentially.
func TestPropertyConcurrentStoreMatchesSequentialModel(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 10
	props := gopter.NewProperties(params)

	props.Property("no lost updates across devices", prop.ForAll(
		func(seed int64) bool {
			const devices = 50
			rng := rand.New(rand.NewSource(seed))
			store := NewStore(DefaultPolicy())
			devs := make([]config.Device, devices)
			sequences := make([][]ping.ProbeResult, devices)
			for i := range devs {
				devs[i] = config.Device{IP: fmt.Sprintf("10.0.0.%d", i+1), Name: fmt.Sprintf("dev-%d", i+1)}
				outcomes := make([]bool, 20+rng.Intn(30))
				for j := range outcomes {
					outcomes[j] = rng.Intn(4) != 0
				}
				sequences[i] = toResults(outcomes)
			}
			store.Reset(devs)

			delays := make([][]time.Duration, devices)
			for i := range delays {
				delays[i] = make([]time.Duration, len(sequences[i]))
				for j := range delays[i] {
					delays[i][j] = time.Duration(rng.Intn(200)) * time.Microsecond
				}
			}

			var wg sync.WaitGroup
			for i := range devs {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					for j, res := range sequences[i] {
						time.Sleep(delays[i][j])
						store.Apply(devs[i], res, t0.Add(time.Duration(j)*5*time.Second), nil)
					}
				}(i)
			}
			wg.Wait()

			for i, dev := range devs {
				want := InitialState()
				for j, res := range sequences[i] {
					want, _ = Transition(want, res, t0.Add(time.Duration(j)*5*time.Second), DefaultPolicy())
				}
				got, ok := store.Get(dev.IP)
				if !ok || got.DeviceState != want {
					return false
				}
			}
			return true
		},
		gen.Int64(),
	))

	props.TestingRun(t, gopter.ConsoleReporter(false))
}
