package storage

import "errors"

var (
	// ErrInvalidConfig reports a nil or unusable storage configuration.
	ErrInvalidConfig = errors.New("invalid storage config")

	// ErrConnectionFailed reports that the database could not be opened.
	ErrConnectionFailed = errors.New("storage connection failed")

	// ErrQueryFailed reports a failed read or write.
	ErrQueryFailed = errors.New("storage query failed")

	// ErrBufferFull reports that the async log buffer is full and the entry
	// was dropped.
	ErrBufferFull = errors.New("storage buffer full")

	// ErrClosed reports use after Close.
	ErrClosed = errors.New("storage closed")
)
