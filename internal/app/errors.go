package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrInvalidMatch  = errors.New("invalid match")
	ErrInvalidPlayer = errors.New("invalid player")
	ErrUnknownPlayer = errors.New("unknown player")
	ErrBackpressure  = errors.New("match queue is full")
	ErrNotStarted    = errors.New("service not started")
)
