package redis

import "errors"

var (
	ErrEmptyConnectionURL   = errors.New("redis: empty connection URL")
	ErrInvalidConnectionURL = errors.New("redis: invalid connection URL")
	ErrNotReady             = errors.New("redis: not ready before the retry budget ran out")
	ErrHealthcheckFailed    = errors.New("redis: healthcheck failed")
)
