package traceenv

import "sync/atomic"

// idCounters is the §4.5 "monotonic id counters: next_parser_id,
// next_span_id, next_spanner_id, next_trace_id (thread-safe)" set. Plain
// atomic counters, same as the teacher's cmn/cos/uuid.go rtie counter —
// no need for a full mutex when an add is the only operation.
type idCounters struct {
	parser  uint64
	span    uint64
	spanner uint64
	trace   uint64
}

func (c *idCounters) NextParserID() uint64  { return atomic.AddUint64(&c.parser, 1) }
func (c *idCounters) NextSpanID() uint64    { return atomic.AddUint64(&c.span, 1) }
func (c *idCounters) NextSpannerID() uint64 { return atomic.AddUint64(&c.spanner, 1) }
func (c *idCounters) NextTraceID() uint64   { return atomic.AddUint64(&c.trace, 1) }
