package engine

import "time"

// Scheduler runs fn once after delay. The returned function cancels the
// run if it has not started yet.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) (cancel func())
}

// SchedulerFunc adapts a function to the Scheduler interface.
type SchedulerFunc func(delay time.Duration, fn func()) func()

// Schedule calls f.
func (f SchedulerFunc) Schedule(delay time.Duration, fn func()) func() { return f(delay, fn) }

// TimerScheduler runs steps on time.AfterFunc goroutines.
var TimerScheduler Scheduler = SchedulerFunc(func(delay time.Duration, fn func()) func() {
	t := time.AfterFunc(delay, fn)
	return func() { t.Stop() }
})
