// Package lol implements a small, leveled console logger used by every
// subsystem in the gateway. Colors are via fatih/color so level is visible at
// a glance in a terminal; when stdout is not a terminal color codes are
// stripped automatically by that library.
package lol

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
)

// Level is a log verbosity level, ordered from quietest to loudest.
type Level int32

const (
	Off Level = iota
	Fatal
	Error
	Warn
	Info
	Debug
	Trace
)

// Names maps level names to Level, used to parse configuration strings.
var Names = map[string]Level{
	"off":   Off,
	"fatal": Fatal,
	"error": Error,
	"warn":  Warn,
	"info":  Info,
	"debug": Debug,
	"trace": Trace,
}

var current atomic.Int32

func init() { current.Store(int32(Info)) }

// SetLogLevel sets the current global log level by name; unrecognised names
// leave the level unchanged.
func SetLogLevel(name string) {
	if lvl, ok := Names[name]; ok {
		current.Store(int32(lvl))
	}
}

// GetLogLevel parses a level name, defaulting to Info.
func GetLogLevel(name string) Level {
	if lvl, ok := Names[name]; ok {
		return lvl
	}
	return Info
}

func enabled(l Level) bool { return Level(current.Load()) >= l }

var colors = map[Level]*color.Color{
	Fatal: color.New(color.FgHiRed, color.Bold),
	Error: color.New(color.FgRed),
	Warn:  color.New(color.FgYellow),
	Info:  color.New(color.FgCyan),
	Debug: color.New(color.FgGreen),
	Trace: color.New(color.FgMagenta),
}

var tags = map[Level]string{
	Fatal: "FTL",
	Error: "ERR",
	Warn:  "WRN",
	Info:  "INF",
	Debug: "DBG",
	Trace: "TRC",
}

// Print writes one leveled log line to stderr if the level is enabled.
func Print(l Level, msg string) {
	if !enabled(l) {
		return
	}
	c := colors[l]
	ts := time.Now().Format("15:04:05.000")
	c.Fprintf(os.Stderr, "%s %s %s\n", ts, tags[l], msg)
}

// Printf is the formatted form of Print.
func Printf(l Level, format string, args ...interface{}) {
	if !enabled(l) {
		return
	}
	Print(l, fmt.Sprintf(format, args...))
}
