package liveness

import "errors"

var (
	// ErrInvalidEvent marks a malformed heartbeat. It is never retried;
	// the consumer drops the message or routes it to the dead letter
	// queue.
	ErrInvalidEvent = errors.New("invalid heartbeat event")

	// ErrEngineBusy is returned when compare-and-set retries are
	// exhausted. Recoverable: the caller redelivers the message later.
	ErrEngineBusy = errors.New("engine busy: retries exhausted")
)
