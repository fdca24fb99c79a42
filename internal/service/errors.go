package service

import "errors"

var (
	// ErrConversationNotFound covers both a missing conversation and one
	// owned by someone else; callers cannot distinguish the two.
	ErrConversationNotFound = errors.New("conversation not found")

	ErrTurnNotFound = errors.New("turn not found")

	// ErrStreamUnavailable is returned when the completion source cannot
	// produce a response at all.
	ErrStreamUnavailable = errors.New("completion source unavailable")
)
