package store

import "errors"

var (
	ErrTenantNotFound    = errors.New("tenant not found")
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrRecordNotFound    = errors.New("medical record not found")
	ErrRecordExists      = errors.New("medical record already exists for user")
	ErrInvalidTransition = errors.New("invalid ticket transition")
	ErrActiveExists      = errors.New("another ticket is already active for this tenant and day")
	ErrUnavailable       = errors.New("store unavailable")
)
