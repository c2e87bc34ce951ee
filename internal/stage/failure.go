package stage

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a stage failure and decides retry behavior.
type Kind string

const (
	// KindTransient failures are retried with backoff up to the retry bound.
	KindTransient Kind = "transient"
	// KindValidation failures stem from bad inputs. Retrying without a
	// change cannot succeed, so the workflow fails immediately.
	KindValidation Kind = "validation"
	// KindFatal failures stop the stage permanently.
	KindFatal Kind = "fatal"
)

// Failure carries a failure classification alongside the underlying error.
type Failure struct {
	Kind Kind
	Err  error
}

func (f *Failure) Error() string { return fmt.Sprintf("%s: %v", f.Kind, f.Err) }
func (f *Failure) Unwrap() error { return f.Err }

func Transient(err error) error {
	return &Failure{Kind: KindTransient, Err: err}
}

func Transientf(format string, args ...any) error {
	return &Failure{Kind: KindTransient, Err: fmt.Errorf(format, args...)}
}

func Validation(err error) error {
	return &Failure{Kind: KindValidation, Err: err}
}

func Validationf(format string, args ...any) error {
	return &Failure{Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}

func Fatal(err error) error {
	return &Failure{Kind: KindFatal, Err: err}
}

func Fatalf(format string, args ...any) error {
	return &Failure{Kind: KindFatal, Err: fmt.Errorf(format, args...)}
}

// KindOf classifies any error. Deadline and cancellation map to transient;
// the caller decides whether a timeout on a non-idempotent stage must be
// escalated instead. Unclassified errors are treated as transient so flaky
// collaborators get their retries.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}
	return KindTransient
}
