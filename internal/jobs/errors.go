package jobs

import "errors"

var (
	ErrInvalidSchedule = errors.New("invalid schedule")
	ErrInvalidJob      = errors.New("invalid job")
	ErrRegister        = errors.New("job registration failed")
)
