// Package reader implements the §6 external Reader collaborator: open a
// path, hand back one line at a time, close. Every parser producer owns
// one Reader; nothing else in the core depends on how lines actually get
// off disk, so this is a thin, swappable implementation rather than load-
// bearing machinery (§1 calls the line-oriented file reader out of scope
// for the trace core itself — it's listed here because no other source
// in the retrieval pack provides one, so the stand-in has to come from
// somewhere for the module to run end to end).
package reader

import (
	"bufio"
	"os"
)

// Reader yields one line at a time from a log file.
type Reader interface {
	// NextLine returns the next line (without its trailing newline), or
	// ok=false once the input is exhausted. A non-nil error is always
	// fatal for the caller's pipeline (§7's IoError).
	NextLine() (line string, ok bool, err error)
	Close() error
}

type fileReader struct {
	f  *os.File
	sc *bufio.Scanner
}

// Open opens path and returns a bufio.Scanner-backed Reader. Lines may be
// arbitrarily long (network-sim lines in particular run long), so the
// scanner's buffer is grown well past bufio's 64KiB default.
func Open(path string) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &fileReader{f: f, sc: sc}, nil
}

func (r *fileReader) NextLine() (string, bool, error) {
	if r.sc.Scan() {
		return r.sc.Text(), true, nil
	}
	if err := r.sc.Err(); err != nil {
		return "", false, err
	}
	return "", false, nil
}

func (r *fileReader) Close() error { return r.f.Close() }
