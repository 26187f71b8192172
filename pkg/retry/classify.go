package retry

import (
	"context"
	"errors"
	"strings"
)

// Kind classifies a failure for retry decisions.
type Kind string

const (
	// KindNetwork covers connection resets, refused connections, and DNS failures.
	KindNetwork Kind = "network"

	// KindTimeout covers deadline expiry on launch or page operations.
	KindTimeout Kind = "timeout"

	// KindProtocol covers malformed or unexpected responses from the engine driver.
	KindProtocol Kind = "protocol"

	// KindQuota covers daily engine-time quota exhaustion reported by the provider.
	KindQuota Kind = "quota"

	// KindFatal covers everything that retrying cannot fix.
	KindFatal Kind = "fatal"
)

// Retryable reports whether a failure of this kind is eligible for
// bounded automatic retry.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetwork, KindTimeout, KindProtocol:
		return true
	}
	return false
}

// Kinds lists every classification, in a stable order.
func Kinds() []Kind {
	return []Kind{KindNetwork, KindTimeout, KindProtocol, KindQuota, KindFatal}
}

// Classifier maps a raw error to a Kind. The Classify function is the
// default; tests and providers with richer error types may supply their own.
type Classifier func(error) Kind

// Classify maps a raw failure into a Kind. Errors that already carry a
// classification keep it; sentinel and context errors are checked next;
// everything else falls back to message heuristics.
func Classify(err error) Kind {
	if err == nil {
		return KindFatal
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindFatal
	}

	s := strings.ToLower(err.Error())

	switch {
	case strings.Contains(s, "quota"),
		strings.Contains(s, "daily limit"),
		strings.Contains(s, "usage limit"):
		return KindQuota
	case strings.Contains(s, "timeout"),
		strings.Contains(s, "timed out"),
		strings.Contains(s, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(s, "connection refused"),
		strings.Contains(s, "connection reset"),
		strings.Contains(s, "no such host"),
		strings.Contains(s, "network"),
		strings.Contains(s, "broken pipe"),
		strings.Contains(s, "eof"):
		return KindNetwork
	case strings.Contains(s, "protocol"),
		strings.Contains(s, "malformed"),
		strings.Contains(s, "unexpected message"),
		strings.Contains(s, "websocket"):
		return KindProtocol
	}

	return KindFatal
}

// Error carries a classification alongside the original cause. The cause is
// never replaced or flattened; errors.Is and errors.As reach through it.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classified wraps err with kind unless it already carries one.
func Classified(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf is a convenience for reading the classification off an error,
// classifying it on the fly when it has none.
func KindOf(err error) Kind {
	return Classify(err)
}
