package diagnosis

import "errors"

var (
	// ErrRateLimited is returned by inference backends when the upstream
	// model provider throttles the request.
	ErrRateLimited = errors.New("inference rate limited")
	// ErrConditionNotFound is returned when a condition id is unknown.
	ErrConditionNotFound = errors.New("condition not found")
)
