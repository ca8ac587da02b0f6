/*
errors.go - Error taxonomy for payments and sales statements

PURPOSE:
  Every failure leaving this package is one of two externally visible
  kinds. Transport layers switch on Kind, never on message text.

ERROR KINDS:
  1. Validation  - Caller input broke a rule. Never retried. The message is
                   specific and safe to show (it may name configured bounds).
  2. Operational - Storage or infrastructure failure that survived the retry
                   budget. The message is generic; the cause is only
                   reachable through Unwrap for operator logs.

  ConfigError is separate: it is only produced while building a RateTable
  at startup and is fatal there.

USAGE:
  resp, err := processor.CreatePayment(ctx, req)
  if e := sales.Classify(err); e != nil {
      switch e.Kind {
      case sales.KindValidation:   // 400, e.Message
      case sales.KindOperational:  // 503, e.Message (generic)
      }
  }

SEE ALSO:
  - retry.go: Produces operational errors on exhaustion
  - api/handlers.go: Maps kinds to HTTP status codes
*/
package sales

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput marks every validation failure.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStorage marks failures reaching or using the payment store.
	ErrStorage = errors.New("storage failure")

	// ErrInvalidConfig is returned when the rate table violates an invariant.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// GenericFailureMessage is the only text an operational failure exposes.
const GenericFailureMessage = "Undefined error occurred, please try again."

// =============================================================================
// CLASSIFIED ERROR
// =============================================================================

type Kind string

const (
	KindValidation  Kind = "validation"
	KindOperational Kind = "operational"
)

// Error is a classified failure. Path is a location hint supplied by the
// transport (for example the operation name); it is empty inside this
// package.
type Error struct {
	Kind    Kind
	Message string
	Path    string
	cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

// WithPath returns a copy of e carrying the given path hint.
func (e *Error) WithPath(path string) *Error {
	c := *e
	c.Path = path
	return &c
}

// Cause returns the underlying failure for operator logs. Never send it to
// callers.
func (e *Error) Cause() error { return e.cause }

func invalidInput(format string, args ...any) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: fmt.Sprintf(format, args...),
		cause:   ErrInvalidInput,
	}
}

func operational(cause error) *Error {
	if !errors.Is(cause, ErrStorage) {
		cause = fmt.Errorf("%w: %w", ErrStorage, cause)
	}
	return &Error{
		Kind:    KindOperational,
		Message: GenericFailureMessage,
		cause:   cause,
	}
}

// Classify maps any error onto the two-kind taxonomy. Unrecognised errors
// are operational.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, ErrInvalidInput) {
		return &Error{Kind: KindValidation, Message: err.Error(), cause: err}
	}
	return operational(err)
}

// ValidationError builds a validation failure outside this package, e.g.
// for malformed transport input.
func ValidationError(format string, args ...any) *Error {
	return invalidInput(format, args...)
}

func IsValidation(err error) bool {
	e := Classify(err)
	return e != nil && e.Kind == KindValidation
}

func IsOperational(err error) bool {
	e := Classify(err)
	return e != nil && e.Kind == KindOperational
}

// =============================================================================
// CONFIGURATION ERRORS - Startup only
// =============================================================================

// ConfigError describes a rate table entry that failed validation.
type ConfigError struct {
	Method PaymentMethod
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("invalid rate configuration: %s", e.Reason)
	}
	return fmt.Sprintf("invalid rate configuration for %s: %s", e.Method, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}
