package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a stage error for retry and abort decisions.
type Kind int

const (
	// KindTransient covers network errors, timeouts, 5xx responses and
	// rate-limit rejections. Eligible for retry.
	KindTransient Kind = iota
	// KindTerminal covers invalid input, validation failures and other
	// errors that retrying cannot fix.
	KindTerminal
	// KindAuth covers credential failures. Never retried; surfaces
	// immediately in the stage outcome.
	KindAuth
	// KindFilesystem covers local I/O failures. Fatal for the item;
	// fatal for the batch only during identifier allocation.
	KindFilesystem
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindTerminal:
		return "terminal"
	case KindAuth:
		return "auth"
	case KindFilesystem:
		return "filesystem"
	}
	return "unknown"
}

// StageError carries a classification alongside the underlying error.
type StageError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(op string, err error) error {
	return &StageError{Kind: KindTransient, Op: op, Err: err}
}

// Terminal wraps err as not retryable.
func Terminal(op string, err error) error {
	return &StageError{Kind: KindTerminal, Op: op, Err: err}
}

// Auth wraps a credential failure.
func Auth(op string, err error) error {
	return &StageError{Kind: KindAuth, Op: op, Err: err}
}

// Filesystem wraps a local I/O failure.
func Filesystem(op string, err error) error {
	return &StageError{Kind: KindFilesystem, Op: op, Err: err}
}

// Classify returns the Kind of err. Typed stage errors carry their own
// kind; deadline and network timeouts are transient; everything else is
// terminal so unknown failures never hammer an external API.
func Classify(err error) Kind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTransient
	}
	return KindTerminal
}

// Retryable reports whether err is worth retrying.
func Retryable(err error) bool {
	return Classify(err) == KindTransient
}
