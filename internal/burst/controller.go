package burst

import (
	"swift-predict/internal/astopo"
	"swift-predict/internal/bpa"
	"swift-predict/internal/window"
)

// Algo selects which burst prediction search runs on each scheduled
// evaluation.
type Algo string

const (
	AlgoNaive    Algo = "naive"
	AlgoSingle   Algo = "bpa-single"
	AlgoMultiple Algo = "bpa-multiple"
)

// bpaSizeCeiling is the burst size above which periodic re-evaluation is
// disabled for the remainder of the burst — a very large ongoing burst no
// longer benefits from repeated BPA runs, and the cost of running it grows
// with graph size.
const bpaSizeCeiling = 12505

// Config holds the threshold and scoring parameters driving one peer's
// burst state machine.
type Config struct {
	StartThreshold  int
	EndThreshold    int
	MinBpaBurstSize int
	BpaFreq         int
	PW, RW          float64
	Algo            Algo

	// PeerASSet seeds the naive-mode candidate AS set; it grows further via
	// AddPeerAS as advertisements are observed.
	PeerASSet []int64
}

// Controller runs the per-peer burst lifecycle state machine: it watches
// the live withdrawal window for threshold crossings, opens and closes
// Burst records, and schedules periodic BPA evaluations while a burst is
// active. It does not own the window queue or the topology graphs — those
// belong to the peer supervisor, which drives Controller by calling
// RecordWithdrawal and Advance as messages arrive.
type Controller struct {
	cfg    Config
	peerID string

	current          *Burst
	nextBpaExecution int
	bpaDisabled      bool

	lastTs float64

	peerASSet map[int64]bool
}

// NewController returns an idle Controller for one peer.
func NewController(peerID string, cfg Config) *Controller {
	c := &Controller{
		cfg:              cfg,
		peerID:           peerID,
		nextBpaExecution: cfg.MinBpaBurstSize,
		peerASSet:        make(map[int64]bool),
	}
	for _, asn := range cfg.PeerASSet {
		c.peerASSet[asn] = true
	}
	return c
}

// AddPeerAS grows the naive-mode candidate AS set with the head of an
// observed advertisement's AS path, mirroring peer_as_set.add(as_path[0])
// on every 'A' message.
func (c *Controller) AddPeerAS(asn int64) {
	c.peerASSet[asn] = true
}

// Active reports whether a burst is currently open.
func (c *Controller) Active() bool { return c.current != nil && !c.current.IsExpired() }

// Current returns the currently open burst, or nil if idle.
func (c *Controller) Current() *Burst {
	if c.Active() {
		return c.current
	}
	return nil
}

// RecordWithdrawal pushes rec onto wQueue and, if a burst is active,
// attributes rec's prefix to it as a real withdrawal.
func (c *Controller) RecordWithdrawal(rec WRecord, wQueue *window.Queue[WRecord]) {
	wQueue.Push(rec)
	if c.Active() {
		c.current.AddRealPrefix(rec.Prefix)
	}
}

// Advance steps the per-peer wall clock from its last-seen timestamp to
// ts one second at a time, evicting expired window entries and checking
// burst open/close conditions at every intervening second. evicted window
// records are routed to the open burst's retained list while a burst is
// active, or removed from gw directly otherwise. Returns the burst that
// was just closed during this call (nil if none), and whether a new burst
// was opened.
func (c *Controller) Advance(ts float64, wQueue *window.Queue[WRecord], gw *astopo.Graph) (closed *Burst, opened bool) {
	for c.lastTs+1 <= ts {
		c.lastTs++
		if cl, op := c.tick(c.lastTs, wQueue, gw); cl != nil || op {
			closed, opened = cl, op
		}
	}
	c.lastTs = ts
	return closed, opened
}

func (c *Controller) tick(ts float64, wQueue *window.Queue[WRecord], gw *astopo.Graph) (closed *Burst, opened bool) {
	evicted := wQueue.RefreshIter(ts)

	if c.Active() {
		c.current.DeletedFromWQueue = append(c.current.DeletedFromWQueue, evicted...)
	} else {
		for _, r := range evicted {
			gw.Remove(r.ASPath, r.Prefix)
		}
	}

	if c.Active() && wQueue.Len() < c.cfg.EndThreshold {
		closed = c.closeBurst(ts, wQueue, gw)
	}

	if !c.Active() && wQueue.Len() >= c.cfg.StartThreshold {
		c.openBurst(ts, wQueue)
		opened = true
	}

	return closed, opened
}

func (c *Controller) openBurst(ts float64, wQueue *window.Queue[WRecord]) {
	at100 := ts
	if n := wQueue.Len(); n >= 100 {
		at100 = wQueue.At(99).Timestamp()
	} else if n > 0 {
		at100 = wQueue.At(0).Timestamp()
	}
	c.current = New(c.peerID, ts, at100)
	c.nextBpaExecution = c.cfg.MinBpaBurstSize
	c.bpaDisabled = false
}

func (c *Controller) closeBurst(ts float64, wQueue *window.Queue[WRecord], gw *astopo.Graph) *Burst {
	b := c.current
	b.Touch(ts)

	for i := 0; i < wQueue.Len(); i++ {
		r := wQueue.At(i)
		gw.Remove(r.ASPath, r.Prefix)
	}
	for _, r := range b.DeletedFromWQueue {
		gw.Remove(r.ASPath, r.Prefix)
	}

	b.Stop()
	c.current = nil
	return b
}

// MaybeRunBPA checks the periodic-evaluation schedule and, if due, runs
// BPA and returns its result. The schedule counter `next_bpa_execution`
// advances by BpaFreq after each run, unless the burst has grown past the
// hard size ceiling or BpaFreq is non-positive, in which case periodic
// evaluation is permanently disabled for the rest of this burst.
func (c *Controller) MaybeRunBPA(ts float64, g, gw *astopo.Graph) (result bpa.Result, ran bool) {
	if !c.Active() || c.bpaDisabled {
		return bpa.Result{}, false
	}

	size := c.cfg.StartThreshold + c.current.Len()
	if size < c.nextBpaExecution {
		return bpa.Result{}, false
	}

	result = c.runBPA(ts, g, gw)
	ran = true

	if size < bpaSizeCeiling && c.cfg.BpaFreq > 0 {
		c.nextBpaExecution += c.cfg.BpaFreq
	} else {
		c.bpaDisabled = true
	}

	return result, true
}

// ForceBPA runs an unconditional final BPA evaluation, used when a burst
// closes regardless of the periodic schedule. b must be a burst this
// controller just closed (or the currently active one).
func (c *Controller) ForceBPA(ts float64, g, gw *astopo.Graph, b *Burst, wNbOverride ...float64) bpa.Result {
	save := c.current
	c.current = b
	defer func() { c.current = save }()
	return c.runBPA(ts, g, gw)
}

func (c *Controller) runBPA(ts float64, g, gw *astopo.Graph) bpa.Result {
	wNb := float64(0)
	if c.current != nil {
		wNb = float64(c.current.Len() + len(c.current.DeletedFromWQueue))
	}

	var result bpa.Result
	switch c.cfg.Algo {
	case AlgoSingle:
		result = bpa.FindSingle(g, gw, wNb, c.cfg.PW, c.cfg.RW)
	case AlgoMultiple:
		fwd := bpa.FindForward(g, gw, wNb, c.cfg.PW, c.cfg.RW, true)
		bwd := bpa.FindBackward(g, gw, wNb, c.cfg.PW, c.cfg.RW, true)
		switch {
		case fwd.Score > bwd.Score:
			result = fwd
		case bwd.Score > fwd.Score:
			result = bwd
		default:
			edges := append(append([]bpa.Link{}, fwd.Edges...), bwd.Edges...)
			result = bpa.Result{Edges: edges, Score: fwd.Score, TP: -1, FP: -1, FN: -1}
		}
	default:
		result = c.runNaive(g, gw, wNb)
	}

	if c.current != nil {
		for _, e := range result.Edges {
			c.current.AddEdge(e)
		}
	}
	return result
}

func (c *Controller) runNaive(g, gw *astopo.Graph, wNb float64) bpa.Result {
	var combined bpa.Result
	for asn := range c.peerASSet {
		r := bpa.FindNaive(g, gw, wNb, asn, c.cfg.PW, c.cfg.RW)
		combined.Edges = append(combined.Edges, r.Edges...)
		combined.TP += r.TP
		combined.FP += r.FP
	}
	combined.FN = wNb - combined.TP
	if combined.TP > 0 {
		combined.Score = bpa.FowlkesMallows(combined.TP, combined.FP, combined.FN, c.cfg.PW, c.cfg.RW)
	}
	return combined
}
