package config

import (
	"sync"
	"time"
)

// debouncer calls f once Timeout passed since the last debounce() call
type debouncer struct {
	Timeout time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func (d *debouncer) debounce(f func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.Timeout, f)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
