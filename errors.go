package odoosync

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("odoosync: no store configured")
	ErrStoreClosed     = errors.New("odoosync: store closed")
	ErrMigrationFailed = errors.New("odoosync: migration failed")

	// Not found errors.
	ErrJobNotFound     = errors.New("odoosync: job not found")
	ErrMappingNotFound = errors.New("odoosync: mapping not found")
	ErrAdapterNotFound = errors.New("odoosync: module adapter not found")

	// Validation errors.
	ErrInvalidJob      = errors.New("odoosync: invalid job")
	ErrEnqueueFailed   = errors.New("odoosync: enqueue failed")
	ErrDuplicateModule = errors.New("odoosync: module already registered")

	// Coordination errors.
	ErrLockTimeout = errors.New("odoosync: lock acquisition timed out")
	ErrLockNotHeld = errors.New("odoosync: lock not held")
	ErrCircuitOpen = errors.New("odoosync: circuit open, odoo unavailable")
)
