// panic_recovery.go: Panic recovery for caller-supplied callbacks
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"runtime"
)

// withStackRecover returns a recovery function that logs the panic together
// with the goroutine stack. Use it with defer around listener invocations:
//
//	func() {
//	    defer withStackRecover(logger)()
//	    handler(event)
//	}()
func withStackRecover(logger Logger) func() {
	return func() {
		if r := recover(); r != nil {
			buf := make([]byte, 64<<10)
			n := runtime.Stack(buf, false)

			logger.Error("Panic recovered in callback",
				"panic", r,
				"stack", string(buf[:n]))
		}
	}
}

// safeCall runs fn and recovers any panic through withStackRecover.
func safeCall(logger Logger, fn func()) {
	defer withStackRecover(logger)()
	fn()
}
