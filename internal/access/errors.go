package access

import "errors"

// Business failures surfaced to callers unchanged. None of them is retried
// inside this package; storage failures propagate as-is alongside these.
var (
	ErrInvalidInput       = errors.New("access: invalid input")
	ErrBadCredentials     = errors.New("access: bad credentials")
	ErrCredentialsExpired = errors.New("access: credentials expired")
	ErrAccountLocked      = errors.New("access: account locked")
	ErrAccountDisabled    = errors.New("access: account disabled")
	ErrSimultaneousLogin  = errors.New("access: simultaneous login forbidden")
	ErrNotFound           = errors.New("access: not found")
	ErrConflict           = errors.New("access: already exists")
)
