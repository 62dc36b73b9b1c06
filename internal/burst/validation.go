package burst

import "swift-predict/internal/window"

// ValidationController tracks ground-truth burst windows for one peer
// without ever running BPA: it combines advertisements and withdrawals
// into a single window (U_queue) and opens/closes Burst records using the
// same threshold-crossing rule as Controller, purely to produce a
// real_prefixes history that a BPA-driven Controller's predictions can be
// graded against.
type ValidationController struct {
	peerID         string
	startThreshold int
	endThreshold   int

	current *Burst
	lastTs  float64
}

// NewValidationController returns an idle ValidationController for one
// peer.
func NewValidationController(peerID string, startThreshold, endThreshold int) *ValidationController {
	return &ValidationController{
		peerID:         peerID,
		startThreshold: startThreshold,
		endThreshold:   endThreshold,
	}
}

// Active reports whether a ground-truth burst is currently open.
func (c *ValidationController) Active() bool { return c.current != nil && !c.current.IsExpired() }

// Current returns the currently open ground-truth burst, or nil.
func (c *ValidationController) Current() *Burst {
	if c.Active() {
		return c.current
	}
	return nil
}

// Record pushes rec (advertisement or withdrawal alike) onto uQueue and,
// if a ground-truth burst is active, attributes its prefix to it.
func (c *ValidationController) Record(rec WRecord, uQueue *window.Queue[WRecord]) {
	uQueue.Push(rec)
	if c.Active() {
		c.current.AddRealPrefix(rec.Prefix)
	}
}

// Advance steps the per-peer wall clock one second at a time up to ts,
// evicting expired U_queue entries and opening/closing ground-truth
// bursts on threshold crossings. Returns the burst closed during this
// call (nil if none) and whether a new one was opened.
func (c *ValidationController) Advance(ts float64, uQueue *window.Queue[WRecord]) (closed *Burst, opened bool) {
	for c.lastTs+1 <= ts {
		c.lastTs++
		uQueue.Refresh(c.lastTs)

		if c.Active() && uQueue.Len() < c.endThreshold {
			c.current.Touch(c.lastTs)
			c.current.Stop()
			closed = c.current
			c.current = nil
		}

		if !c.Active() && uQueue.Len() >= c.startThreshold {
			c.current = New(c.peerID, c.lastTs, c.lastTs)
			opened = true
		}
	}
	c.lastTs = ts
	return closed, opened
}
