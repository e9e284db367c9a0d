// Package kering defines the error taxonomy raised by the TEL verifier core.
package kering

import (
	"errors"
	"fmt"
)

// Code classifies a TELError so callers (escrow drains, HTTP handlers) can
// switch on failure category without string matching.
type Code int

const (
	// CodeInvalidArgument covers malformed events, wrong ilk in context,
	// missing labels, prefix mismatch, duplicate members, toad out of
	// bounds, intersecting cut/add sets, mismatched prior digest, and
	// unknown query routes.
	CodeInvalidArgument Code = iota
	// CodeOutOfOrder means sn > expected; the event is escrowed under oot
	// before the error is raised.
	CodeOutOfOrder
	// CodeMissingAnchor means the anchoring KEL event is absent or its seal
	// doesn't match; the event is escrowed under tae and a query cue is
	// emitted.
	CodeMissingAnchor
	// CodeMissingWitnessSignature means too few valid backer signatures met
	// toad; the event is escrowed under twe.
	CodeMissingWitnessSignature
	// CodeLikelyDuplicitous means sn < expected, or a second vcp for a known
	// registry.
	CodeLikelyDuplicitous
	// CodeMissingEntry means a referenced persistent record is absent (e.g.
	// during reload, or an anchorless escrow entry with no stored anchor
	// couple).
	CodeMissingEntry
	// CodeValidation is the catch-all structural check failure.
	CodeValidation
)

func (c Code) String() string {
	switch c {
	case CodeInvalidArgument:
		return "invalid-argument"
	case CodeOutOfOrder:
		return "out-of-order"
	case CodeMissingAnchor:
		return "missing-anchor"
	case CodeMissingWitnessSignature:
		return "missing-witness-signature"
	case CodeLikelyDuplicitous:
		return "likely-duplicitous"
	case CodeMissingEntry:
		return "missing-entry"
	case CodeValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// TELError is the error type raised throughout coring/eventing/vdr.
type TELError struct {
	Code Code
	Msg  string
	Err  error // optional wrapped cause
}

func (e *TELError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *TELError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, kering.ErrMissingAnchor) match by code rather than
// by pointer identity, since every call site constructs a fresh *TELError.
func (e *TELError) Is(target error) bool {
	t, ok := target.(*TELError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinel values for errors.Is comparisons; construct concrete instances
// with New for messages.
var (
	ErrInvalidArgument         = &TELError{Code: CodeInvalidArgument}
	ErrOutOfOrder              = &TELError{Code: CodeOutOfOrder}
	ErrMissingAnchor           = &TELError{Code: CodeMissingAnchor}
	ErrMissingWitnessSignature = &TELError{Code: CodeMissingWitnessSignature}
	ErrLikelyDuplicitous       = &TELError{Code: CodeLikelyDuplicitous}
	ErrMissingEntry            = &TELError{Code: CodeMissingEntry}
	ErrValidation              = &TELError{Code: CodeValidation}
)

// CodeOf extracts the Code carried by err, if any is present in its
// chain, so callers can switch on failure category without a type
// assertion at every call site.
func CodeOf(err error) Code {
	var te *TELError
	if errors.As(err, &te) {
		return te.Code
	}
	return -1
}

// New builds a TELError with a formatted message.
func New(code Code, format string, args ...any) *TELError {
	return &TELError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds a TELError carrying an underlying cause.
func Wrap(code Code, err error, format string, args ...any) *TELError {
	return &TELError{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}
