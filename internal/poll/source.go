package poll

import "time"

// Cadence computes the next fire time from the completion of the previous
// attempt. Every is an exact delay; any robfig/cron Schedule also fits.
type Cadence interface {
	Next(time.Time) time.Time
}

// Every fires a fixed duration after the previous attempt completed.
type Every time.Duration

// Next implements Cadence.
func (e Every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}

// DataSource identifies one polled feed and carries its health.
// Created at Schedule, dropped at Cancel; Cadence never changes.
type DataSource struct {
	ID       string
	Endpoint string
	Cadence  Cadence

	LastFetchAt         time.Time // dispatch time of the latest attempt
	LastSuccessAt       time.Time
	ConsecutiveFailures int
	LastErr             error
}

// period estimates the cadence interval around t.
func (d DataSource) period(t time.Time) time.Duration {
	if d.Cadence == nil {
		return 0
	}
	next := d.Cadence.Next(t)
	if next.IsZero() {
		return 0
	}
	return next.Sub(t)
}

// Stale reports whether the dashboard should flag this source: the last
// attempt failed, nothing has succeeded yet, or the last success is more
// than two cadence periods old.
func (d DataSource) Stale(now time.Time) bool {
	if d.LastErr != nil || d.LastSuccessAt.IsZero() {
		return true
	}
	p := d.period(d.LastSuccessAt)
	if p <= 0 {
		return false
	}
	return now.Sub(d.LastSuccessAt) > 2*p
}

// PollTask is the scheduling state of one DataSource. A completion is
// applied only while its captured Generation still equals this one.
type PollTask struct {
	SourceID   string
	NextFireAt time.Time
	InFlight   bool
	Generation uint64
}

// Result is what a task's onResult callback receives.
type Result[T any] struct {
	SourceID   string
	Value      T
	Err        error
	At         time.Time
	Generation uint64
}

// Tick is published to OnSourceTick subscribers after every applied
// completion, successful or not.
type Tick struct {
	SourceID            string
	At                  time.Time
	Generation          uint64
	Err                 error
	ConsecutiveFailures int
	Stale               bool
}
