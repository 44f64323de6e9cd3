package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrNotReady           = errors.New("local session not hydrated yet")
	// ErrWipeBlocked is returned when a save would replace a non-empty
	// session with an empty one and no explicit clear was requested.
	ErrWipeBlocked = errors.New("empty save blocked: session previously had images")
)
