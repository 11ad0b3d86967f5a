package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrParse         = errors.New("malformed orderbook message")
	ErrTransport     = errors.New("feed transport failure")
	ErrInvalidParams = errors.New("invalid simulator parameters")
	ErrCircuitOpen   = errors.New("circuit open")
)
