// Package pkg provides shared utilities for the softhcd transaction engine.
//
// This package contains common functionality used across the engine and its
// hardware abstraction layers, including:
//
//   - Structured logging backed by [github.com/sirupsen/logrus]
//   - Sentinel error types for USB protocol and API errors
//   - The transfer completion status taxonomy
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps logrus with engine-specific context:
//
//	pkg.SetLogLevel(logrus.DebugLevel)
//	pkg.LogInfo(pkg.ComponentHost, "pipe opened", "pipe", 3)
//
// # Errors
//
// Common USB errors are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrInvalidParameter) {
//	    // Stale handle or bad argument
//	}
package pkg
