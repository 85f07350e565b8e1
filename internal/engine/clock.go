package engine

import "time"

// Clock supplies wall time for expiry and audit stamps.
//
// The engine never runs timers. Expiry is the pure predicate
// chain.IsExpired evaluated against Clock.Now by whoever calls ExpireDue.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the system clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
