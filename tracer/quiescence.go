// Idle-window trace completion, for when a config overrides the default
// "drain on end of input" policy (§4.7, §9's idle-window REDESIGN FLAG).
//
// Adapted from the teacher's xact.RefcntQuiCB (xact/qui.go): a three-way
// decision — still active, timed out, or quiet-but-not-yet-timed-out —
// driven off an activity counter and an elapsed duration. There it counts
// in-flight references; here it counts spans still pending in a trace and
// time since a span last joined the trace or was marked done.
package tracer

import "time"

// QuiResult mirrors the teacher's cluster.QuiRes three-way outcome.
type QuiResult int

const (
	// QuiActive means the trace still has pending spans; keep waiting.
	QuiActive QuiResult = iota
	// QuiTimeout means the idle window elapsed with pending spans still
	// outstanding; finalize anyway (they'll show up incomplete, which is
	// diagnostic information in its own right).
	QuiTimeout
	// QuiInactive means no spans are pending and the idle window has
	// elapsed since the trace's last activity; finalize normally.
	QuiInactive
)

// quiCB is the decision table itself, factored out of SweepIdle so it can
// be unit tested without a real Tracer.
func quiCB(pendingCount int, idle, sinceActivity time.Duration) QuiResult {
	if pendingCount > 0 {
		if sinceActivity > idle {
			return QuiTimeout
		}
		return QuiActive
	}
	if sinceActivity > idle {
		return QuiInactive
	}
	return QuiActive
}

// SweepIdle finalizes every outstanding trace whose idle window (time
// since a span last joined it or was marked done) has elapsed as of now,
// per quiCB.
// Intended to be registered with package hk as a periodic callback when a
// config sets an idle window shorter than "end of input". Returns the
// traces it finalized.
func (t *Tracer) SweepIdle(now int64, idle time.Duration) []*Trace {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sunk []*Trace
	for _, rec := range t.snapshotRecordsLocked() {
		pending := 0
		for id := range rec.members {
			if s, ok := t.spans[id]; ok && s.Pending {
				pending++
			}
		}
		sinceActivity := time.Duration(now - rec.lastActivity)
		switch quiCB(pending, idle, sinceActivity) {
		case QuiTimeout, QuiInactive:
			t.finalizeLocked(rec)
			sunk = append(sunk, t.completed[len(t.completed)-1])
		case QuiActive:
			// leave it outstanding
		}
	}
	return sunk
}
