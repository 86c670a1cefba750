package privacy

import "errors"

// scrubbedError reports a scrubbed message while keeping err reachable for
// errors.Is and errors.As.
type scrubbedError struct {
	err error
	msg string
}

func (e *scrubbedError) Error() string { return e.msg }

func (e *scrubbedError) Unwrap() error { return e.err }

// ScrubError returns err with its message passed through ScrubMessage.
// Errors built with errors.Join are scrubbed part by part, so a failed
// notification service or sync table keeps its own line.
func ScrubError(err error) error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		parts := joined.Unwrap()
		scrubbed := make([]error, 0, len(parts))
		for _, part := range parts {
			scrubbed = append(scrubbed, ScrubError(part))
		}
		return errors.Join(scrubbed...)
	}
	return &scrubbedError{err: err, msg: ScrubMessage(err.Error())}
}

// ScrubText scrubs an optional message, such as a sync log error column.
func ScrubText(msg *string) *string {
	if msg == nil {
		return nil
	}
	scrubbed := ScrubMessage(*msg)
	return &scrubbed
}
