package scheduler

import "errors"

var (
	ErrCapacity       = errors.New("task capacity reached")
	ErrNilAction      = errors.New("task action is nil")
	ErrNotFound       = errors.New("task not found")
	ErrNotRepeating   = errors.New("task does not repeat")
	ErrTickInProgress = errors.New("tick in progress")
)
