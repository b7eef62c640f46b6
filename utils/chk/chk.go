// Package chk provides the two guard helpers used throughout the gateway to
// turn "if err != nil { log; return }" into a single conditional. Both log the
// call site (file:line) of the *caller*, not of chk itself.
package chk

import (
	"fmt"
	"runtime"

	"relaygate.dev/utils/log"
)

func where(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "?"
	}
	return fmt.Sprintf("%s:%d", file, line)
}

// E logs err at Error level with the caller's location and returns true if
// err is non-nil. The idiom is:
//
//	if err = thing(); chk.E(err) {
//	    return
//	}
func E(err error) bool {
	if err == nil {
		return false
	}
	log.E.F("%s: %v", where(2), err)
	return true
}

// T is the soft-failure counterpart of E: it logs at Trace level (so it is
// silent by default) and returns true if err is non-nil. Use it where a
// failure is expected and handled, e.g. an optional config file not existing.
func T(err error) bool {
	if err == nil {
		return false
	}
	log.T.F("%s: %v", where(2), err)
	return true
}
