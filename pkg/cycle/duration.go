package cycle

import (
	"fmt"
	"strings"
	"time"
)

// Duration is the billing cycle length of a pricing record
type Duration string

const (
	Daily     Duration = "daily"
	Weekly    Duration = "weekly"
	Monthly   Duration = "monthly"
	Quarterly Duration = "quarterly"
	Yearly    Duration = "yearly"
)

const secondsPerDay int64 = 24 * 60 * 60

var durationSeconds = map[Duration]int64{
	Daily:     1 * secondsPerDay,
	Weekly:    7 * secondsPerDay,
	Monthly:   30 * secondsPerDay,
	Quarterly: 90 * secondsPerDay,
	Yearly:    365 * secondsPerDay,
}

// Durations lists the supported cycle durations, shortest first
func Durations() []Duration {
	return []Duration{Daily, Weekly, Monthly, Quarterly, Yearly}
}

// ParseDuration parses a cycle duration name (case-insensitive)
func ParseDuration(s string) (Duration, error) {
	d := Duration(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := durationSeconds[d]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDuration, s)
	}
	return d, nil
}

// Valid reports whether d is one of the supported durations
func (d Duration) Valid() bool {
	_, ok := durationSeconds[d]
	return ok
}

// Seconds returns the cycle length in whole seconds, or 0 for an unknown duration
func (d Duration) Seconds() int64 {
	return durationSeconds[d]
}

// Std returns the cycle length as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d.Seconds()) * time.Second
}

func (d Duration) String() string {
	return string(d)
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDuration, string(d))
	}
	return []byte(d), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
