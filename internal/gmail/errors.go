package gmail

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	// ErrAuth indicates missing or rejected credentials.
	ErrAuth = errors.New("auth error")

	// ErrGmail indicates a failed remote call (list, get, labels).
	ErrGmail = errors.New("gmail error")

	// ErrRateLimit indicates the provider throttled the request.
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrProcessing indicates a decode or extraction failure for one message.
	ErrProcessing = errors.New("processing error")

	// ErrQuery indicates malformed search criteria.
	ErrQuery = errors.New("query error")

	// ErrConfig indicates an invalid component configuration.
	ErrConfig = errors.New("config error")
)

// Error carries an error kind together with the operation and the cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	case e.Op == "":
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Errorf builds an *Error of the given kind with a formatted cause.
func Errorf(kind error, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap tags err with kind. A nil err yields nil.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
