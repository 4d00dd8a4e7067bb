package services

import (
	"errors"

	"compengine/internal/repositories/interfaces"
)

var (
	ErrNotFound           = interfaces.ErrNotFound
	ErrTransactionAborted = interfaces.ErrTransactionAborted

	// ErrAlreadyProcessed marks a duplicate trigger. Callers treat it as a no-op.
	ErrAlreadyProcessed = errors.New("already processed")
	ErrInvalidAmount    = errors.New("invalid amount")
)
