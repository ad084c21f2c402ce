package repository

import "errors"

var (
	ErrNotFound         = errors.New("listing not found")
	ErrAlreadyExists    = errors.New("listing already exists")
	ErrUpdateFailed     = errors.New("update failed")
	ErrDeleteFailed     = errors.New("delete failed")
	ErrConnectionFailed = errors.New("database connection failed")
	// ErrCounterUnderflow signals a broken store invariant: the live
	// listing counter would go negative.
	ErrCounterUnderflow = errors.New("live listing counter underflow")
)
