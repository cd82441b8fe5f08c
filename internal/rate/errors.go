package rate

import "errors"

// ErrRateLimited is returned when a counter exceeds its budget.
var ErrRateLimited = errors.New("rate limited")

// ErrRedisUnavailable is returned when the backing Redis cannot be reached.
var ErrRedisUnavailable = errors.New("redis unavailable")
