package tracer

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

// TextSink is the default pluggable sink (§6): one line per span, grouped
// under a trace header. Sufficient for eyeballing a small run; JSON or a
// downstream store are other Sink implementations a caller can supply
// instead — Non-goals rule out a persistent store of our own, not a
// caller wiring one in behind this interface.
type TextSink struct {
	W io.Writer
}

func (s *TextSink) Accept(t *Trace) error {
	if _, err := fmt.Fprintf(s.W, "trace %d root=%d spans=%d\n", t.ID, t.Root.ID, len(t.Spans)); err != nil {
		return err
	}
	for _, sp := range t.Spans {
		if _, err := fmt.Fprintf(s.W, "  span %d kind=%s pending=%t events=%d\n", sp.Ref.ID, sp.Kind, sp.Pending, len(sp.Events)); err != nil {
			return err
		}
	}
	return nil
}

// MemSink accumulates traces in memory, for tests and for callers that
// want to post-process the run programmatically instead of reading text.
type MemSink struct {
	Traces []*Trace
}

func (s *MemSink) Accept(t *Trace) error {
	s.Traces = append(s.Traces, t)
	return nil
}

var js = jsoniter.ConfigFastest

// JSONSink writes one JSON object per trace, newline-delimited, the
// default pluggable sink §6 names alongside the textual dump.
type JSONSink struct {
	W io.Writer
}

func (s *JSONSink) Accept(t *Trace) error {
	b, err := js.Marshal(t)
	if err != nil {
		return fmt.Errorf("tracer: marshaling trace %d: %w", t.ID, err)
	}
	b = append(b, '\n')
	_, err = s.W.Write(b)
	return err
}
