package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrUnknownSource    = errors.New("unknown source")
	ErrInvalidTick      = errors.New("invalid tick")
	ErrInsufficientData = errors.New("insufficient data")
	ErrTooManyClients   = errors.New("max connections reached")
	ErrAlreadyRunning   = errors.New("already running")
)
