// Package globaltime is the process clock. Run timestamps and persisted rows
// read it so tests can pin time.
package globaltime

import (
	"sync"
	"time"
)

var (
	mu      sync.RWMutex
	nowFunc = time.Now
)

func Now() time.Time {
	mu.RLock()
	fn := nowFunc
	mu.RUnlock()
	return fn()
}

func UTC() time.Time {
	return Now().UTC()
}

// Freeze pins the clock to t. The returned func restores whatever clock was
// active before, so freezes nest.
func Freeze(t time.Time) (restore func()) {
	mu.Lock()
	previous := nowFunc
	nowFunc = func() time.Time { return t }
	mu.Unlock()

	return func() {
		mu.Lock()
		nowFunc = previous
		mu.Unlock()
	}
}
