package models

import (
	"sync/atomic"
	"time"
)

var lastUs atomic.Int64

// NowUs returns the current Unix time in microseconds, guaranteed to be
// strictly increasing across calls within this process. Interaction ordering
// relies on this: two records created back to back must never share a
// timestamp or appear reversed, even if the wall clock steps backward.
func NowUs() int64 {
	for {
		now := time.Now().UnixMicro()
		last := lastUs.Load()
		if now <= last {
			now = last + 1
		}
		if lastUs.CompareAndSwap(last, now) {
			return now
		}
	}
}

// UsToTime converts a microsecond Unix timestamp to time.Time.
func UsToTime(us int64) time.Time {
	return time.UnixMicro(us)
}

// DurationMs returns the elapsed milliseconds between two microsecond
// timestamps.
func DurationMs(startUs, endUs int64) int64 {
	return (endUs - startUs) / 1000
}
