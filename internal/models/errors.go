package models

import "errors"

var (
	// ErrValidation is returned before any state change when input is unusable.
	ErrValidation = errors.New("validation error")
	// ErrNotFound covers missing conversations, foreign owners and unmet retry preconditions.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an attempt is already in flight on a conversation.
	ErrConflict = errors.New("send already in flight")

	ErrTimeout     = errors.New("operation timed out")
	ErrBusy        = errors.New("backend busy")
	ErrGeneric     = errors.New("backend error")
	ErrPersistence = errors.New("persistence error")
)
