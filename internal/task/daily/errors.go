package daily

import "errors"

var (
	ErrInvalidTime = errors.New("invalid time of day")
	ErrNilFunc     = errors.New("daily action func is nil")
)
