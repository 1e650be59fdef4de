package websocket

import (
	"sync"
	"sync/atomic"
	"time"
)

// heartbeat fires onExpire once when no keep-alive arrives within the
// advertised interval.
type heartbeat struct {
	mu        sync.Mutex
	timer     *time.Timer
	timeout   time.Duration
	lastReset time.Time
	stopped   bool
	fired     atomic.Bool
	onExpire  func()
}

func newHeartbeat(onExpire func()) *heartbeat {
	return &heartbeat{onExpire: onExpire}
}

// Start arms the timer with timeout, replacing any previous interval.
func (h *heartbeat) Start(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultConnectionTimeout
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.timeout = timeout
	h.lastReset = time.Now()
	if h.timer != nil {
		h.timer.Stop()
	}
	h.timer = time.AfterFunc(timeout, h.expire)
}

// Reset restarts the interval. It does nothing before Start.
func (h *heartbeat) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped || h.timer == nil {
		return
	}
	h.lastReset = time.Now()
	h.timer.Reset(h.timeout)
}

// Stop disarms the timer for good.
func (h *heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	if h.timer != nil {
		h.timer.Stop()
	}
}

// Timeout returns the armed interval, zero before Start.
func (h *heartbeat) Timeout() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.timeout
}

// LastReset returns the time of the last Start or Reset.
func (h *heartbeat) LastReset() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastReset
}

func (h *heartbeat) expire() {
	h.mu.Lock()
	stopped := h.stopped
	// a Reset racing with the timer moves lastReset forward
	early := time.Since(h.lastReset) < h.timeout
	h.mu.Unlock()
	if stopped || early {
		return
	}
	if !h.fired.CompareAndSwap(false, true) {
		return
	}
	if h.onExpire != nil {
		h.onExpire()
	}
}
