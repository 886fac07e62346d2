package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidQuote     = errors.New("invalid quote")
	ErrClockUnavailable = errors.New("current time unavailable")
	ErrAmountOverflow   = errors.New("amount overflows uint256")
	ErrNoOpportunity    = errors.New("no opportunity")
	ErrDuplicate        = errors.New("duplicate execution")
	ErrSigningFailed    = errors.New("signing failed")
	ErrLockHeld         = errors.New("lock already held")
)
