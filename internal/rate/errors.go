package rate

import "errors"

var (
	// ErrRateLimited is an exported constant or variable used by the passkey engine.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable is an exported constant or variable used by the passkey engine.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
