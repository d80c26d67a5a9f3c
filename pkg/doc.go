// Package pkg provides shared utilities for the softudc device controller
// core.
//
// It holds the two ambient concerns every other package leans on:
//
//   - Structured logging via [log/slog], tagged with a [Component]
//   - Sentinel errors for configuration faults and dispatcher traps
//
// # Logging
//
// Logging is quiet by default (warnings and above). Code running inside an
// interrupt activation should guard expensive argument construction with
// [Enabled]:
//
//	if pkg.Enabled(slog.LevelDebug) {
//	    pkg.LogDebug(pkg.ComponentDispatch, "setup", "request", setup.String())
//	}
//
// # Errors
//
// Faults that cannot be recovered inside an interrupt handler are raised as
// panics carrying a wrapped sentinel, so callers that do want to observe them
// (tests, the replay harness) can match with [errors.Is] after recover:
//
//	defer func() {
//	    if err, ok := recover().(error); ok && errors.Is(err, pkg.ErrPMAExhausted) {
//	        // ...
//	    }
//	}()
package pkg
