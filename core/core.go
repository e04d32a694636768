// Package core has the offline caching worker: install, activate and fetch
// interception over a generation-named cache store.
package core

import (
	"errors"

	"go.opentelemetry.io/otel"
)

// Sentinel errors surfaced by the worker and its registration.
var (
	// ErrInstallFailed wraps every install failure. The generation is not eligible for activation.
	ErrInstallFailed = errors.New("install failed")

	// ErrBodyConsumed is returned when a response body is read a second time.
	ErrBodyConsumed = errors.New("response body already consumed")

	// ErrNotInstalled means the store does not hold a complete generation for the worker.
	ErrNotInstalled = errors.New("generation not installed")

	// ErrInvalidState is returned for lifecycle calls made from the wrong state.
	ErrInvalidState = errors.New("invalid worker state")

	// ErrUnknownMessage is returned by the control channel for unsupported message kinds.
	ErrUnknownMessage = errors.New("unknown control message")

	// ErrNetwork marks a transport failure, as opposed to an HTTP error status.
	ErrNetwork = errors.New("network failure")
)

var tracer = otel.Tracer("github.com/huangsam/digitaldiary/core")
