// Package traceenv is the §4.5 trace environment: process-wide,
// immutable-after-init configuration shared by every parser, spanner, and
// the tracer — the string interner, classification sets, symbol tables,
// id counters, metrics, and run id.
//
// Grounded on the teacher's cmn.Rom (cmn/rom.go): a single package-level
// read-mostly struct, built once by an Init/Set call and read everywhere
// else through typed accessors. After init only the id counters (atomic
// adds) and the Interner (sharded mutexes) synchronize — §5's
// "append-only after initialization" contract.
package traceenv

import (
	"github.com/teris-io/shortid"

	"github.com/q713/simbricks-sub001/events"
)

// Env is the trace environment. Init populates it once, single-threaded,
// at startup (§5).
type Env struct {
	interner    *Interner
	classifiers *Classifiers
	symbols     *SymbolTables
	metrics     *Metrics
	ids         idCounters
	runID       string
	idleWindowMs int64
}

// Rom ("read-mostly") is a package-level Env. Nothing in the module calls
// Rom.Init; cmd/simtrace and the tests each build their own Env.
var Rom Env

// Init builds e from a parsed config. Not safe to call concurrently
// with any reader; call it once, before starting any pipeline.
func (e *Env) Init(cfg *Config) error {
	e.interner = NewInterner()
	e.classifiers = NewClassifiers()
	e.symbols = NewSymbolTables()
	e.metrics = NewMetrics()
	e.idleWindowMs = cfg.IdleWindowMs

	for _, fn := range cfg.Classifiers.LinuxNetStack {
		e.classifiers.AddLinuxNetStack(e.interner.Intern(fn))
	}
	for _, fn := range cfg.Classifiers.DriverTx {
		e.classifiers.AddDriverTx(e.interner.Intern(fn))
	}
	for _, fn := range cfg.Classifiers.DriverRx {
		e.classifiers.AddDriverRx(e.interner.Intern(fn))
	}
	for _, fn := range cfg.Classifiers.NetIfaceSend {
		e.classifiers.AddNetIfaceSend(e.interner.Intern(fn))
	}
	for _, fn := range cfg.Classifiers.NetIfaceRecv {
		e.classifiers.AddNetIfaceRecv(e.interner.Intern(fn))
	}
	for _, fn := range cfg.Classifiers.PciMsixDescAddr {
		e.classifiers.AddPciMsixDescAddr(e.interner.Intern(fn))
	}
	for _, fn := range cfg.Classifiers.SysEntry {
		e.classifiers.AddSysEntry(e.interner.Intern(fn))
	}

	for _, stc := range cfg.SymbolTables {
		st := NewSymbolTable(stc.Identifier, stc.Path, stc.BaseOffset, parseFilterKind(stc.FilterKind), stc.Whitelist)
		for _, sym := range stc.Symbols {
			st.AddSymbol(sym.Addr, sym.Name)
		}
		st.Finalize()
		e.symbols.Add(st)
	}

	e.runID = cfg.RunID
	if e.runID == "" {
		sid, err := shortid.New(1, shortid.DEFAULT_ABC, 0)
		if err != nil {
			return err
		}
		e.runID, err = sid.Generate()
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Env) Interner() *Interner       { return e.interner }
func (e *Env) Classifiers() *Classifiers { return e.classifiers }
func (e *Env) Symbols() *SymbolTables    { return e.symbols }
func (e *Env) Metrics() *Metrics         { return e.metrics }
func (e *Env) RunID() string             { return e.runID }

// IdleWindowMs is the §9 REDESIGN-FLAG idle-window override, in
// milliseconds; 0 means the default "drain on end of input" policy.
func (e *Env) IdleWindowMs() int64 { return e.idleWindowMs }

// NextParserID, NextSpanID, NextSpannerID, NextTraceID are the §4.5
// thread-safe monotonic counters.
func (e *Env) NextParserID() uint64  { return e.ids.NextParserID() }
func (e *Env) NextSpanID() uint64    { return e.ids.NextSpanID() }
func (e *Env) NextSpannerID() uint64 { return e.ids.NextSpannerID() }
func (e *Env) NextTraceID() uint64   { return e.ids.NextTraceID() }

// Intern is a convenience shorthand for e.Interner().Intern.
func (e *Env) Intern(s string) events.InternedStr { return e.interner.Intern(s) }
