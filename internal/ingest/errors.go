package ingest

import "errors"

var (
	// ErrInvalidEvent is returned when a translated event lacks the
	// fields ingestion cannot proceed without.
	ErrInvalidEvent = errors.New("ingest: event missing required fields")

	// ErrSendFailed wraps a transient channel delivery failure. Persisted
	// conversation state is unaffected; the caller may retry the send.
	ErrSendFailed = errors.New("ingest: channel send failed")

	// ErrUnknownChannel is returned when no sender is registered for the
	// contact's channel.
	ErrUnknownChannel = errors.New("ingest: no sender registered for channel")
)
