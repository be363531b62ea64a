package model

import "errors"

// Error taxonomy of the calendar engine. Callers match with errors.Is; the
// HTTP layer maps them to status codes.
var (
	// ErrNotFound: the calendar, bucket or task id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidDate: year/month/day out of the configured bounds or not a
	// real calendar day.
	ErrInvalidDate = errors.New("invalid date")
	// ErrMalformedRule: unknown repetition type/subtype or a value outside
	// the range the rule accepts.
	ErrMalformedRule = errors.New("malformed recurrence rule")
)
