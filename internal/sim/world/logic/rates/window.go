package rates

// Window counts events in fixed windows of ticks. A window opens at the
// first event allowed after the previous one expired.
type Window struct {
	Start uint64
	Count int
}

// Allow records one event at nowTick. It reports whether the event fits in
// max per size ticks and, if not, how many ticks remain until the window resets.
// The cooldown is measured from the tick that opened the window.
// A zero size or non-positive max disables the limit.
func (w *Window) Allow(nowTick, size uint64, max int) (ok bool, cooldownTicks uint64) {
	if size == 0 || max <= 0 {
		return true, 0
	}
	if w.Count == 0 || nowTick-w.Start >= size {
		w.Start = nowTick
		w.Count = 0
	}
	if w.Count >= max {
		return false, (w.Start + size) - nowTick
	}
	w.Count++
	return true, 0
}
