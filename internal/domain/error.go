package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrLockHeld           = errors.New("lock held by another worker")

	// Webhook processing
	ErrUnresolvedCustomer = errors.New("cannot correlate provider customer to a local user")
	ErrMalformedPayload   = errors.New("malformed webhook payload")
	ErrUnknownProvider    = errors.New("unknown webhook provider")

	// Access API
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
)
