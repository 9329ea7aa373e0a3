package traceenv

import (
	"sync"

	"github.com/OneOfOne/xxhash"

	"github.com/q713/simbricks-sub001/events"
)

// internerShards trades a single global mutex for a small fixed fan-out,
// the same shape aistore uses to spread load across mountpaths/targets
// (fs/hrw.go, cmn/cos/uuid.go) rather than a single hot lock.
const internerShards = 16

// seed is an arbitrary fixed xxhash seed; it only needs to be stable
// within one process, not across runs.
const internSeed = 0x5350_4943 // "SPIC"

// Interner interns recurring symbols (function names, component names) to
// a stable pointer, per §4.5. It is internally synchronized; returned
// pointers are stable for the process lifetime (§5).
type Interner struct {
	shards [internerShards]internerShard
}

type internerShard struct {
	mu sync.Mutex
	m  map[string]*string
}

// NewInterner creates an empty interner.
func NewInterner() *Interner {
	in := &Interner{}
	for i := range in.shards {
		in.shards[i].m = make(map[string]*string)
	}
	return in
}

func (in *Interner) shardFor(s string) *internerShard {
	h := xxhash.Checksum64S([]byte(s), internSeed)
	return &in.shards[h%internerShards]
}

// Intern returns the stable pointer for s, interning it on first sight.
func (in *Interner) Intern(s string) events.InternedStr {
	sh := in.shardFor(s)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if p, ok := sh.m[s]; ok {
		return p
	}
	cp := s
	sh.m[s] = &cp
	return &cp
}

// Len reports the total number of distinct interned strings, for metrics
// and tests.
func (in *Interner) Len() int {
	n := 0
	for i := range in.shards {
		in.shards[i].mu.Lock()
		n += len(in.shards[i].m)
		in.shards[i].mu.Unlock()
	}
	return n
}
