// Package errs implements the error taxonomy of the ingest pipeline.
// Errors are classified by Kind rather than by Go type, so a worker
// can decide what to do with an error (drop, log, escalate) with a
// single switch instead of a chain of type assertions.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is one of the error kinds the pipeline distinguishes.
type Kind int

const (
	// KindTransport covers broker connect/subscribe failures.
	KindTransport Kind = iota
	// KindValidation covers envelope sanity/size/varint failures.
	KindValidation
	// KindDecode covers envelope or payload protobuf decode failures.
	KindDecode
	// KindDecrypt covers "no key succeeded" on an encrypted packet.
	KindDecrypt
	// KindStore covers KV backend unavailability or command failure.
	KindStore
	// KindGroupBuffer covers a flush failure to the Notifier.
	KindGroupBuffer
	// KindFatal covers unrecoverable conditions; the caller should exit.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindValidation:
		return "validation"
	case KindDecode:
		return "decode"
	case KindDecrypt:
		return "decrypt"
	case KindStore:
		return "store"
	case KindGroupBuffer:
		return "group_buffer"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Kind for classification.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind and an operation label. Returns nil if err is nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// As reports whether err (or one it wraps) is an *Error, and returns it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind carried by err, or KindFatal if err does not
// carry one (treat unclassified errors conservatively).
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindFatal
}

// suppressed lists the decode-error substrings that must never be
// logged even at debug level: noisy, expected conditions from
// malformed or partial over-the-air frames.
var suppressed = []string{
	"illegal tag",
	"index out of range",
	"invalid wire type",
	"Error received for packet",
	"NO_",
	"TIMEOUT",
	"TOO_LARGE",
	"NOT_AUTHORIZED",
}

// Suppressed reports whether err's message matches one of the known
// noisy decode failures that should be dropped without logging.
func Suppressed(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range suppressed {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
