// Package nlog is the leveled logger used throughout the trace core.
//
// Adapted from the teacher's cmn/nlog (api.go, nlog.go): same severity
// levels and the same Info/Warning/Error + *Depth function surface, so call
// sites read identically. The teacher's buffered, rotating file backend is
// replaced with a single io.Writer (default os.Stderr): this tool processes
// a handful of log files in one run, it does not run forever accumulating
// gigabytes the way the storage daemon the teacher was written for does.
package nlog

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

func (s severity) String() string {
	switch s {
	case sevWarn:
		return "W"
	case sevErr:
		return "E"
	default:
		return "I"
	}
}

var (
	mu     sync.Mutex
	out    io.Writer = os.Stderr
	minSev           = sevInfo
	prefix string
)

// SetOutput redirects all log output; nil resets to os.Stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	out = w
}

// SetPrefix stamps every line with a fixed prefix (e.g. a run id).
func SetPrefix(p string) {
	mu.Lock()
	defer mu.Unlock()
	prefix = p
}

// SetQuiet suppresses Info/Warning lines, keeping only Error.
func SetQuiet(quiet bool) {
	mu.Lock()
	defer mu.Unlock()
	if quiet {
		minSev = sevErr
	} else {
		minSev = sevInfo
	}
}

func log(sev severity, depth int, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if sev < minSev {
		return
	}
	var msg string
	if format == "" {
		msg = fmt.Sprintln(args...)
	} else {
		msg = fmt.Sprintf(format, args...)
		if len(msg) == 0 || msg[len(msg)-1] != '\n' {
			msg += "\n"
		}
	}
	ts := time.Now().Format("2006-01-02T15:04:05.000Z07:00")
	loc := ""
	if _, file, line, ok := runtime.Caller(depth + 2); ok {
		loc = fmt.Sprintf(" %s:%d", short(file), line)
	}
	if prefix != "" {
		fmt.Fprintf(out, "%s %s%s [%s] %s", ts, sev, loc, prefix, msg)
	} else {
		fmt.Fprintf(out, "%s %s%s %s", ts, sev, loc, msg)
	}
}

func short(file string) string {
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			return file[i+1:]
		}
	}
	return file
}

func InfoDepth(depth int, args ...any)    { log(sevInfo, depth, "", args...) }
func Infoln(args ...any)                  { log(sevInfo, 0, "", args...) }
func Infof(format string, args ...any)    { log(sevInfo, 0, format, args...) }
func WarningDepth(depth int, args ...any) { log(sevWarn, depth, "", args...) }
func Warningln(args ...any)               { log(sevWarn, 0, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, 0, format, args...) }
func ErrorDepth(depth int, args ...any)   { log(sevErr, depth, "", args...) }
func Errorln(args ...any)                 { log(sevErr, 0, "", args...) }
func Errorf(format string, args ...any)   { log(sevErr, 0, format, args...) }
