package chat

import "time"

// TimerHandle cancels a scheduled reminder. *time.Timer satisfies it.
type TimerHandle interface {
	Stop() bool
}

// AfterFunc schedules f to run after d. Tests substitute a fake clock.
type AfterFunc func(d time.Duration, f func()) TimerHandle

// DefaultAfterFunc schedules with time.AfterFunc.
var DefaultAfterFunc AfterFunc = func(d time.Duration, f func()) TimerHandle {
	return time.AfterFunc(d, f)
}
