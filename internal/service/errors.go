package service

import "errors"

// Sentinel errors matching the facade-level error taxonomy of spec §7.
var (
	ErrNotFound       = errors.New("service: item not found")
	ErrDbOpen         = errors.New("service: failed to open database")
	ErrDbCorrupt      = errors.New("service: database is corrupt")
	ErrIoFailed       = errors.New("service: filesystem operation failed")
	ErrAlreadyStarted = errors.New("service: facade already started")
	ErrNotStarted     = errors.New("service: facade not started")
	ErrLockHeld       = errors.New("service: data directory is locked by another process")
)
