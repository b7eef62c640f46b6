// Package log exposes package-level leveled logger handles (T/D/I/W/E/F)
// built on top of utils/lol. Each handle supports Ln (space-joined args), F
// (printf-style), S (structured dump of values via go-spew) and C (the string
// returned by a closure).
package log

import (
	"fmt"
	"runtime"

	"github.com/davecgh/go-spew/spew"
	"relaygate.dev/utils/lol"
)

// Handle is a single log level's entry point.
type Handle struct {
	level lol.Level
}

func caller() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "?"
	}
	return fmt.Sprintf("%s:%d", file, line)
}

// Ln logs its arguments space-joined, as fmt.Sprintln without the trailing
// newline (lol.Print adds one).
func (h Handle) Ln(args ...interface{}) {
	s := fmt.Sprintln(args...)
	lol.Print(h.level, s[:len(s)-1])
}

// F logs a printf-style formatted message.
func (h Handle) F(format string, args ...interface{}) {
	lol.Printf(h.level, format, args...)
}

// S dumps one or more values with go-spew, prefixed by the call site.
func (h Handle) S(values ...interface{}) {
	lol.Print(h.level, caller()+" "+spew.Sdump(values...))
}

// C logs the string returned by fn. fn is called on every invocation, whether
// or not this level is enabled; lol.Print then drops the line if it is not.
func (h Handle) C(fn func() string) {
	lol.Print(h.level, fn())
}

var (
	// T is the Trace level handle.
	T = Handle{lol.Trace}
	// D is the Debug level handle.
	D = Handle{lol.Debug}
	// I is the Info level handle.
	I = Handle{lol.Info}
	// W is the Warn level handle.
	W = Handle{lol.Warn}
	// E is the Error level handle.
	E = Handle{lol.Error}
	// F is the Fatal level handle. It logs at the highest severity but never
	// calls os.Exit itself — callers decide whether a fatal condition should
	// terminate the process.
	F = Handle{lol.Fatal}
)
