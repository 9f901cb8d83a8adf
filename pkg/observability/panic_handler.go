package observability

import (
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it with the panic value and
// full stack trace. Call it in a defer:
//
//	defer observability.RecoverPanic(logger, "stats verification")
//
// After logging, the panic is NOT re-raised. The scheduled maintenance jobs
// use this so one bad run never takes the process down.
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("context", context).
			Error("PANIC recovered")
	}
}
