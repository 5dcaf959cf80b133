package config

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestPropertyListenNormalization(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 50
	props := gopter.NewProperties(params)

	props.Property("bare ports expand to :port", prop.ForAll(
		func(port int) bool {
			value := fmt.Sprintf("%d", port)
			return normalizeListen(value) == ":"+value
		},
		gen.IntRange(1, 65535),
	))

	props.Property("host:port is kept verbatim", prop.ForAll(
		func(port int) bool {
			value := fmt.Sprintf("127.0.0.1:%d", port)
			return normalizeListen(value) == value
		},
		gen.IntRange(1, 65535),
	))

	props.TestingRun(t)
}

func TestPropertyCLIOverridesWin(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 25
	props := gopter.NewProperties(params)

	props.Property("interval and concurrency overrides replace file values", prop.ForAll(
		func(fileSec, overrideSec, maxConc int) bool {
			path := writeTempConfig(t, fmt.Sprintf("monitor:\n  interval: %ds\n  max_concurrency: 3\n", fileSec))
			interval := time.Duration(overrideSec) * time.Second
			cfg, err := Load(path, CLIOverrides{Interval: &interval, MaxConcurrency: &maxConc})
			if err != nil {
				return false
			}
			return cfg.Monitor.Interval == interval && cfg.Monitor.MaxConcurrency == maxConc
		},
		gen.IntRange(1, 60),
		gen.IntRange(1, 60),
		gen.IntRange(0, 500),
	))

	props.TestingRun(t)
}
