package logging

import (
	"runtime/debug"
)

// Go runs fn on a new goroutine, recovering and logging any panic so
// that fire-and-forget work (promotion writes, early refreshes,
// write-behind fan-out) can never take the process down.
func Go(l *Logger, operation string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				OrNop(l).Error("background task panicked",
					F("operation", operation),
					F("panic", r),
					F("stack", string(debug.Stack())))
			}
		}()
		fn()
	}()
}
