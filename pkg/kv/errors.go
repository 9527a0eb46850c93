package kv

import "errors"

var (
	ErrInvalidCallback     = errors.New("callback is not a function")
	ErrDuplicateSubscriber = errors.New("duplicate callback")
	ErrUnknownSubscriber   = errors.New("unknown watcher")
	ErrUnknownKey          = errors.New("unknown key")
)
