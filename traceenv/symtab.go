package traceenv

import (
	"sort"

	cuckoo "github.com/seiflotfy/cuckoofilter"
)

// FilterKind selects whether a SymbolTable's symbols are all visible, or
// only those named in an explicit whitelist (§6's config schema).
type FilterKind uint8

const (
	FilterAll FilterKind = iota
	FilterWhitelist
)

type symbolEntry struct {
	addr uint64
	name string
}

// SymbolTable is one §4.5 `{identifier, file_path, base_offset,
// filter_kind, symbol_whitelist?}` entry. Resolve maps an address to the
// nearest symbol at or below it, relative to BaseOffset.
type SymbolTable struct {
	Identifier string
	FilePath   string
	BaseOffset uint64
	Kind       FilterKind

	whitelist *cuckoo.Filter // approximate membership test; nil when Kind == FilterAll
	entries   []symbolEntry  // sorted by addr once Finalize is called
}

// NewSymbolTable creates a table. When kind is FilterWhitelist, whitelist
// names go through a cuckoo filter rather than an exact set: resolve() is
// on the hot path for every HostCall/HostInstr event, and an approximate
// membership test with a small false-positive rate is the right trade for
// that — a whitelist is a filter on an otherwise-valid symbol, not a
// security boundary, so an occasional false positive just lets one extra
// symbol through.
func NewSymbolTable(identifier, filePath string, baseOffset uint64, kind FilterKind, whitelist []string) *SymbolTable {
	st := &SymbolTable{Identifier: identifier, FilePath: filePath, BaseOffset: baseOffset, Kind: kind}
	if kind == FilterWhitelist {
		cap := len(whitelist)
		if cap == 0 {
			cap = 1
		}
		st.whitelist = cuckoo.NewFilter(uint(cap))
		for _, w := range whitelist {
			st.whitelist.InsertUnique([]byte(w))
		}
	}
	return st
}

// AddSymbol records one symbol at the given (table-relative) address.
// Call Finalize once all symbols are added.
func (st *SymbolTable) AddSymbol(addr uint64, name string) {
	st.entries = append(st.entries, symbolEntry{addr: addr, name: name})
}

// Finalize sorts entries by address so Resolve can binary-search.
func (st *SymbolTable) Finalize() {
	sort.Slice(st.entries, func(i, j int) bool { return st.entries[i].addr < st.entries[j].addr })
}

func (st *SymbolTable) allowed(name string) bool {
	if st.Kind == FilterAll {
		return true
	}
	if st.whitelist == nil {
		return false
	}
	return st.whitelist.Lookup([]byte(name))
}

// resolve finds the symbol covering address, or ok=false if none does or
// the whitelist excludes it.
func (st *SymbolTable) resolve(address uint64) (name string, ok bool) {
	if address < st.BaseOffset || len(st.entries) == 0 {
		return "", false
	}
	target := address - st.BaseOffset
	idx := sort.Search(len(st.entries), func(i int) bool { return st.entries[i].addr > target }) - 1
	if idx < 0 {
		return "", false
	}
	name = st.entries[idx].name
	if !st.allowed(name) {
		return "", false
	}
	return name, true
}

// SymbolTables is the ordered collection of tables config loads; Resolve
// tries each in turn.
type SymbolTables struct {
	tables []*SymbolTable
}

func NewSymbolTables() *SymbolTables { return &SymbolTables{} }

func (s *SymbolTables) Add(t *SymbolTable) { s.tables = append(s.tables, t) }

// Resolve implements §6's resolve(address) -> (function_name?, component?).
// An unresolved address (JIT'd code, a table that doesn't cover it) is
// reported as (nil, nil) rather than an error — this is expected, common
// input, not a parse failure (see original_source/trace/source/env).
func (s *SymbolTables) Resolve(address uint64) (funcName, component *string) {
	for _, t := range s.tables {
		if name, ok := t.resolve(address); ok {
			id := t.Identifier
			return &name, &id
		}
	}
	return nil, nil
}
