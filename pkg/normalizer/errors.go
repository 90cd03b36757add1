package normalizer

import "fmt"

// MalformedEventError reports a raw event that failed validation,
// carrying the offending field.
type MalformedEventError struct {
	Field  string
	Reason string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event: field %q %s", e.Field, e.Reason)
}

// FutureEventError reports an event timestamped beyond the allowed
// clock-skew bound.
type FutureEventError struct {
	Field string
	Skew  string
}

func (e *FutureEventError) Error() string {
	return fmt.Sprintf("future event: %q is %s ahead of the intake clock", e.Field, e.Skew)
}
