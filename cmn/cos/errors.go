// Package cos provides common low-level types for the trace core: the
// §7 error taxonomy and a bounded, deduplicating error aggregator.
//
// Adapted from the teacher's cmn/cos/err.go (typed errors constructed by a
// NewErrXxx function and tested by an IsErrXxx predicate, plus the Errs
// aggregator). Kinds follow §7 exactly.
package cos

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// ParseError is §7's ParseMalformed: a line could not be decoded. Local,
// non-fatal — the offending line is skipped with a diagnostic.
type ParseError struct {
	Source string // parser/source name
	Line   string
	Reason string
}

func NewErrParse(source, line, reason string) *ParseError {
	return &ParseError{Source: source, Line: line, Reason: reason}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse malformed [%s]: %s (line: %q)", e.Source, e.Reason, e.Line)
}

func IsErrParse(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// UnexpectedEventError is §7's UnexpectedEvent: an event arrived with no
// matching pending span and no creation rule. Local: the spanner records it
// in its Errs and drops the event; no holdover is kept and the event is not
// retried.
type UnexpectedEventError struct {
	Kind   string
	Reason string
}

func NewErrUnexpectedEvent(kind, reason string) *UnexpectedEventError {
	return &UnexpectedEventError{Kind: kind, Reason: reason}
}

func (e *UnexpectedEventError) Error() string {
	return fmt.Sprintf("unexpected event %s: %s", e.Kind, e.Reason)
}

func IsErrUnexpectedEvent(err error) bool {
	var ue *UnexpectedEventError
	return errors.As(err, &ue)
}

// ContextError is §7's ContextMismatch: a polled context carried the wrong
// expectation. Fatal for the spanner that polled it.
type ContextError struct {
	Spanner  string
	Expected string
	Got      string
}

func NewErrContextMismatch(spanner, expected, got string) *ContextError {
	return &ContextError{Spanner: spanner, Expected: expected, Got: got}
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("%s: context mismatch: expected %s, got %s", e.Spanner, e.Expected, e.Got)
}

func IsErrContextMismatch(err error) bool {
	var ce *ContextError
	return errors.As(err, &ce)
}

// InvariantError is §7's InvariantViolation: an id/addr mismatch where the
// protocol requires equality. Fatal.
type InvariantError struct {
	What string
}

func NewErrInvariant(format string, a ...any) *InvariantError {
	return &InvariantError{What: fmt.Sprintf(format, a...)}
}

func (e *InvariantError) Error() string { return "invariant violation: " + e.What }

func IsErrInvariant(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

// ChannelClosedError is §7's ChannelClosed: normal shutdown, not fatal.
type ChannelClosedError struct{ Chan string }

func NewErrChannelClosed(name string) *ChannelClosedError { return &ChannelClosedError{Chan: name} }
func (e *ChannelClosedError) Error() string                { return e.Chan + ": channel closed" }
func IsErrChannelClosed(err error) bool {
	var ce *ChannelClosedError
	return errors.As(err, &ce)
}

// ChannelPoisonedError is §7's ChannelPoisoned: fatal upstream error.
type ChannelPoisonedError struct {
	Chan  string
	Cause error
}

func NewErrChannelPoisoned(name string, cause error) *ChannelPoisonedError {
	return &ChannelPoisonedError{Chan: name, Cause: cause}
}

func (e *ChannelPoisonedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: channel poisoned: %v", e.Chan, e.Cause)
	}
	return e.Chan + ": channel poisoned"
}

func (e *ChannelPoisonedError) Unwrap() error { return e.Cause }

func IsErrChannelPoisoned(err error) bool {
	var pe *ChannelPoisonedError
	return errors.As(err, &pe)
}

// IoError is §7's IoError: reader failure, fatal for its pipeline.
type IoError struct {
	Path string
	Err  error
}

func NewErrIo(path string, err error) *IoError { return &IoError{Path: path, Err: err} }
func (e *IoError) Error() string                { return fmt.Sprintf("io error reading %s: %v", e.Path, e.Err) }
func (e *IoError) Unwrap() error                 { return e.Err }
func IsErrIo(err error) bool {
	var ie *IoError
	return errors.As(err, &ie)
}

// IsFatal reports whether err is one of §7's fatal kinds: ContextMismatch,
// InvariantViolation, ChannelPoisoned, or IoError. Fatal errors poison
// downstream channels and close upstream ones (§7, §4.10).
func IsFatal(err error) bool {
	return IsErrContextMismatch(err) || IsErrInvariant(err) ||
		IsErrChannelPoisoned(err) || IsErrIo(err)
}

// Errs is a thread-safe, bounded, deduplicating error collector, adapted
// from the teacher's cmn/cos.Errs. Used to accumulate local (non-fatal)
// errors over a pipeline run without unbounded growth.
type Errs struct {
	mu   sync.Mutex
	errs []error
	cnt  int
}

const maxErrs = 16

// Add records err, keeping at most maxErrs of them. An error whose message
// matches one already kept is ignored; duplicates of errors added after
// the cap is reached are not detected and are counted again.
func (e *Errs) Add(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, seen := range e.errs {
		if seen.Error() == err.Error() {
			return
		}
	}
	e.cnt++
	if len(e.errs) < maxErrs {
		e.errs = append(e.errs, err)
	}
}

// Cnt returns the total number of errors Add counted (may exceed maxErrs).
func (e *Errs) Cnt() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cnt
}

// JoinErr summarizes the recorded errors as one error carrying the total
// count and the first recorded error's message, or nil if none; the other
// kept errors are not included.
func (e *Errs) JoinErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.errs) == 0 {
		return nil
	}
	return errors.Errorf("%d error(s), first: %v", e.cnt, e.errs[0])
}
