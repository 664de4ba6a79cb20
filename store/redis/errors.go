package redis

import "errors"

// Connection errors, checked with errors.Is.
var (
	ErrEmptyConnectionURL           = errors.New("hitcount/store/redis: empty connection URL")
	ErrFailedToParseRedisConnString = errors.New("hitcount/store/redis: failed to parse connection string")
	ErrRedisNotReady                = errors.New("hitcount/store/redis: redis did not become ready in time")
	ErrHealthcheckFailed            = errors.New("hitcount/store/redis: healthcheck failed")
)
