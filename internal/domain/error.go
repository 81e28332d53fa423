package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid executor context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrJobNotCancellable  = errors.New("only queued jobs can be cancelled")
	ErrJobNotRetryable    = errors.New("only failed jobs can be retried")
)
