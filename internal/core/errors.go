package core

import "errors"

var (
	// Capture errors. ErrCaptureUnavailable is the only fatal class in
	// the pipeline: the capture device cannot be opened, so nothing
	// downstream can run. Everything else is absorbed locally.
	ErrCaptureUnavailable = errors.New("meter: capture device unavailable")

	// Stream errors
	ErrStreamClosed = errors.New("meter: stream closed")

	// Frame decoding errors
	ErrFrameTooShort = errors.New("meter: frame too short")
	ErrFrameCorrupt  = errors.New("meter: frame corrupt")

	// Event errors
	ErrEventIncomplete = errors.New("meter: event missing required fields")

	// Configuration errors
	ErrConfigInvalid = errors.New("meter: invalid configuration")

	// Pipeline errors
	ErrPipelineStopped = errors.New("meter: pipeline stopped")
)
