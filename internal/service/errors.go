package service

import "errors"

// Domain errors returned by the services. Handlers map them to response codes.
var (
	ErrExamNotFound         = errors.New("exam not found")
	ErrExamNotAvailable     = errors.New("exam is not available to this user")
	ErrAttemptNotFound      = errors.New("attempt not found")
	ErrAttemptNotStarted    = errors.New("attempt has not been started")
	ErrAttemptNotInProgress = errors.New("attempt is not in progress")
	ErrAttemptExpired       = errors.New("attempt time has expired")
	ErrNotOwner             = errors.New("attempt belongs to another user")
	ErrInvalidSelection     = errors.New("choice does not belong to a question of this exam")
	ErrInvalidSignal        = errors.New("unknown anti-cheat signal")
)
