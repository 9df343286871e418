package models

import "time"

// ClickWindowSize bounds the per-IP click history.
const ClickWindowSize = 20

// ClickWindow is a fixed ring of the most recent click timestamps. It is a
// value type so copies taken under a lock stay consistent.
type ClickWindow struct {
	samples  [ClickWindowSize]time.Time
	next     int
	count    int
	LastSeen time.Time
}

// Append adds a sample, evicting the oldest once the window is full.
func (w ClickWindow) Append(at time.Time) ClickWindow {
	w.samples[w.next] = at
	w.next = (w.next + 1) % ClickWindowSize
	if w.count < ClickWindowSize {
		w.count++
	}
	w.LastSeen = at
	return w
}

func (w ClickWindow) Len() int {
	return w.count
}

// Samples returns the timestamps oldest first.
func (w ClickWindow) Samples() []time.Time {
	out := make([]time.Time, 0, w.count)
	start := (w.next - w.count + ClickWindowSize) % ClickWindowSize
	for i := range w.count {
		out = append(out, w.samples[(start+i)%ClickWindowSize])
	}
	return out
}

// RateWindow is a fixed one-window counter.
type RateWindow struct {
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
}

// Advance counts one request at `at`. Once `at` is a full window past
// WindowStart the counter restarts at 1 instead of carrying over.
func (w RateWindow) Advance(at time.Time, window time.Duration) RateWindow {
	if w.WindowStart.IsZero() || at.Sub(w.WindowStart) >= window {
		return RateWindow{Count: 1, WindowStart: at}
	}
	w.Count++
	return w
}
