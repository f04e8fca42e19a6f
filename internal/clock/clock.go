// Package clock supplies an injectable current-time source so
// confidence decay and recency scoring stay reproducible in tests.
package clock

import "time"

// Clock returns the current time. Real() is the system clock; tests use a
// closure over a mutable time.Time so confidence decay and recency scoring
// are reproducible.
type Clock func() time.Time

// Real returns the system clock, truncated to the second to match the
// seconds-precision timestamps every stored event and entry carries.
func Real() Clock {
	return func() time.Time { return time.Now().UTC().Truncate(time.Second) }
}
