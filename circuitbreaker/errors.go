package circuitbreaker

import "errors"

// ErrOpen is returned when a call is rejected because the circuit is open
// (or a half-open trial is already in flight) and no fallback is configured.
// Callers can branch on it with errors.Is instead of matching messages.
var ErrOpen = errors.New("circuit breaker is open")

// ErrNotRegistered is returned by Manager.Execute for an unknown service name.
var ErrNotRegistered = errors.New("circuit breaker not registered")
