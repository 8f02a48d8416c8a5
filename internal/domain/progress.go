package domain

import "time"

// UnknownSize marks a total byte count that is not known
const UnknownSize int64 = -1

// FetchProgressFunc receives byte counts from a single stream fetch.
// total is UnknownSize when the server did not declare a length.
type FetchProgressFunc func(downloaded, total int64, elapsed time.Duration)

// Progress is a progress event for one item, possibly part of a collection
type Progress struct {
	Downloaded int64
	Total      int64
	Elapsed    time.Duration
	Index      int // 1-based position within the collection
	Count      int // number of items in the collection
	Title      string
}

// Percent returns completion in the range [0, 100], or -1 when the total is unknown
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return -1
	}
	return float64(p.Downloaded) / float64(p.Total) * 100
}

// ETA estimates the remaining time from the average rate so far
func (p Progress) ETA() (time.Duration, bool) {
	if p.Total <= 0 || p.Downloaded <= 0 || p.Elapsed <= 0 {
		return 0, false
	}
	remaining := p.Total - p.Downloaded
	if remaining <= 0 {
		return 0, true
	}
	rate := float64(p.Downloaded) / p.Elapsed.Seconds()
	return time.Duration(float64(remaining) / rate * float64(time.Second)), true
}

// ProgressFunc receives progress events; it is called synchronously from the downloading goroutine
type ProgressFunc func(Progress)
