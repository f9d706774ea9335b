package election

import "errors"

var (
	ErrValidation   = errors.New("invalid id or code format")
	ErrNotFound     = errors.New("voter or candidate not found")
	ErrNotStarted   = errors.New("election has not started")
	ErrEnded        = errors.New("election has ended")
	ErrDisabled     = errors.New("election is not active")
	ErrAlreadyVoted = errors.New("vote already cast")
)
