package health

import "errors"

var (
	// ErrCheckTimeout is the Err of a result whose check outlived the aggregator timeout.
	ErrCheckTimeout = errors.New("health: check timed out")

	// ErrCheckerNotFound is returned by Aggregator.Check for unknown names.
	ErrCheckerNotFound = errors.New("health: checker not found")

	// ErrDuplicateChecker is returned when a name is registered twice.
	ErrDuplicateChecker = errors.New("health: checker already registered")
)
