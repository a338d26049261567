// Package clock provides the server-assigned timestamp source used for
// last-write-wins conflict resolution. Client-supplied timestamps are never
// trusted anywhere in the service.
package clock

import (
	"sync"
	"time"
)

// Millis returns a server-assigned millisecond timestamp.
type Millis func() int64

// Wall returns current wall-clock milliseconds.
func Wall() int64 {
	return time.Now().UnixMilli()
}

// Monotonic returns a Millis that is strictly increasing across calls, so
// two accepted updates can never carry the same last_edit_time.
func Monotonic() Millis {
	var mu sync.Mutex
	var last int64
	return func() int64 {
		mu.Lock()
		defer mu.Unlock()
		now := Wall()
		if now <= last {
			now = last + 1
		}
		last = now
		return now
	}
}
