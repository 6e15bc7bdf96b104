package sentinel

import (
	"maps"

	goerrors "github.com/goliatone/go-errors"
)

// Payload keys used by lifecycle results and events.
const (
	PayloadUser      = "user"
	PayloadUserID    = "userId"
	PayloadActivated = "activated"
	PayloadThrottle  = "throttle"
)

// Result is the outcome of a lifecycle operation. It is immutable: accessors
// return copies of the underlying collections.
type Result struct {
	successful bool
	message    string
	payload    map[string]any
	kind       ErrorKind
	err        error
	warnings   []error
}

func succeeded(message string, payload map[string]any) Result {
	return Result{
		successful: true,
		message:    message,
		payload:    maps.Clone(payload),
	}
}

func failed(err error) Result {
	r := Result{
		kind: KindOf(err),
		err:  err,
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		r.message = richErr.Message
	} else if err != nil {
		r.message = err.Error()
	}

	return r
}

func failedWith(err error, payload map[string]any) Result {
	r := failed(err)
	r.payload = maps.Clone(payload)
	return r
}

func (r Result) withWarnings(warnings []error) Result {
	if len(warnings) == 0 {
		return r
	}
	r.warnings = append(append([]error(nil), r.warnings...), warnings...)
	return r
}

// Successful reports whether the operation succeeded.
func (r Result) Successful() bool { return r.successful }

// Message is a human readable summary.
func (r Result) Message() string { return r.message }

// Kind classifies a failure. It is KindNone on success.
func (r Result) Kind() ErrorKind { return r.kind }

// Err returns the failure, nil on success.
func (r Result) Err() error { return r.err }

// Warnings lists non-fatal problems, such as event sink failures.
func (r Result) Warnings() []error {
	return append([]error(nil), r.warnings...)
}

// Payload returns a copy of the operation payload.
func (r Result) Payload() map[string]any {
	if r.payload == nil {
		return map[string]any{}
	}
	return maps.Clone(r.payload)
}

// Get returns a single payload value.
func (r Result) Get(key string) (any, bool) {
	v, ok := r.payload[key]
	return v, ok
}

// User returns the user stored in the payload, if any.
func (r Result) User() *User {
	u, _ := r.payload[PayloadUser].(*User)
	return u
}

// Activated returns the "activated" payload flag.
func (r Result) Activated() bool {
	v, _ := r.payload[PayloadActivated].(bool)
	return v
}
