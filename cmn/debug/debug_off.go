//go:build !debug

// Package debug provides zero-cost (in release builds) invariant checks.
//
// Build with -tags debug to enable; these guard *programming* invariants
// (e.g. a span offered an event from a foreign source id along a path the
// state machine diagrams say is unreachable) as opposed to protocol-level
// invariant violations driven by untrusted input, which are returned as
// typed errors (cmn/cos) instead of asserted here.
package debug

func ON() bool { return false }

func Assert(_ bool, _ ...any)            {}
func Assertf(_ bool, _ string, _ ...any) {}
func AssertNoErr(_ error)                {}
func AssertFunc(_ func() bool, _ ...any) {}
