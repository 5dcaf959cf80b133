package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/doridoridoriand/pingalert/internal/config"
)

// OptionalDuration records a duration flag and whether it was set.
type OptionalDuration struct {
	value time.Duration
	set   bool
}

func (o *OptionalDuration) Set(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	o.value = v
	o.set = true
	return nil
}

func (o *OptionalDuration) String() string {
	if !o.set {
		return ""
	}
	return o.value.String()
}

func (o *OptionalDuration) Type() string { return "duration" }

// Ptr returns the value, or nil when the flag was not given.
func (o *OptionalDuration) Ptr() *time.Duration {
	if !o.set {
		return nil
	}
	v := o.value
	return &v
}

func (o *OptionalDuration) Value() (time.Duration, bool) {
	return o.value, o.set
}

// OptionalInt records an int flag and whether it was set.
type OptionalInt struct {
	value int
	set   bool
}

func (o *OptionalInt) Set(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	o.value = v
	o.set = true
	return nil
}

func (o *OptionalInt) String() string {
	if !o.set {
		return ""
	}
	return strconv.Itoa(o.value)
}

func (o *OptionalInt) Type() string { return "int" }

func (o *OptionalInt) Ptr() *int {
	if !o.set {
		return nil
	}
	v := o.value
	return &v
}

func (o *OptionalInt) Value() (int, bool) {
	return o.value, o.set
}

// OptionalString records a string flag and whether it was set.
type OptionalString struct {
	value string
	set   bool
}

func (o *OptionalString) Set(s string) error {
	o.value = s
	o.set = true
	return nil
}

func (o *OptionalString) String() string {
	if !o.set {
		return ""
	}
	return o.value
}

func (o *OptionalString) Type() string { return "string" }

// Ptr returns the value, or nil when the flag was not given or empty.
func (o *OptionalString) Ptr() *string {
	if !o.set || o.value == "" {
		return nil
	}
	v := o.value
	return &v
}

func (o *OptionalString) Value() (string, bool) {
	return o.value, o.set
}

// OptionalBool records a bool flag and whether it was set.
type OptionalBool struct {
	value bool
	set   bool
}

func (o *OptionalBool) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	o.value = v
	o.set = true
	return nil
}

func (o *OptionalBool) String() string {
	if !o.set {
		return ""
	}
	if o.value {
		return "true"
	}
	return "false"
}

func (o *OptionalBool) IsBoolFlag() bool {
	return true
}

func (o *OptionalBool) Type() string { return "bool" }

func (o *OptionalBool) Ptr() *bool {
	if !o.set {
		return nil
	}
	v := o.value
	return &v
}

func (o *OptionalBool) Value() (bool, bool) {
	return o.value, o.set
}

// OptionalPingerMode records a pinger mode flag and whether it was set.
type OptionalPingerMode struct {
	value config.PingerMode
	set   bool
}

func (o *OptionalPingerMode) Set(s string) error {
	mode := config.PingerMode(s)
	if !mode.Valid() {
		return fmt.Errorf("invalid pinger mode: %q (valid values: auto, icmp, external)", s)
	}
	o.value = mode
	o.set = true
	return nil
}

func (o *OptionalPingerMode) String() string {
	if !o.set {
		return ""
	}
	return string(o.value)
}

func (o *OptionalPingerMode) Type() string { return "mode" }

func (o *OptionalPingerMode) Ptr() *config.PingerMode {
	if !o.set {
		return nil
	}
	v := o.value
	return &v
}

func (o *OptionalPingerMode) Value() (config.PingerMode, bool) {
	return o.value, o.set
}
