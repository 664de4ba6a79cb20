package hitcount

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidIdentity is returned by New for an empty or malformed
	// counter name.
	ErrInvalidIdentity = errors.New("hitcount: invalid counter identity")

	// ErrInvalidTimestamp is returned before any store call when a timestamp
	// is the zero time or falls outside years 1 through 9999.
	ErrInvalidTimestamp = errors.New("hitcount: invalid timestamp")

	// ErrInvalidSpan is returned for negative rolling windows and for series
	// ranges that are inverted or too large.
	ErrInvalidSpan = errors.New("hitcount: invalid span")

	// ErrStoreUnavailable wraps every failure reported by the store.
	// Counters never retry on their own.
	ErrStoreUnavailable = errors.New("hitcount: store unavailable")
)

// BucketError reports a failed write to a single bucket.
type BucketError struct {
	Key string
	Err error
}

func (e *BucketError) Error() string {
	return fmt.Sprintf("hitcount: bucket %s: %v", e.Key, e.Err)
}

func (e *BucketError) Unwrap() error {
	return e.Err
}

// IncrementError is returned when some or all bucket writes of an increment
// failed. Writes that succeeded are not rolled back: an increment is atomic
// per bucket, not across granularities.
type IncrementError struct {
	Counter   string
	Attempted int
	Failed    []*BucketError
}

func (e *IncrementError) Error() string {
	return fmt.Sprintf("hitcount: increment %s: %d of %d bucket writes failed: %v",
		e.Counter, len(e.Failed), e.Attempted, e.Failed[0].Err)
}

// Unwrap exposes every bucket failure to errors.Is and errors.As.
func (e *IncrementError) Unwrap() []error {
	out := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		out[i] = f
	}
	return out
}
