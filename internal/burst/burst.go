// Package burst tracks the lifecycle of one withdrawal burst per peer: the
// window-threshold-crossing state machine that opens a burst, schedules
// periodic burst prediction algorithm (BPA) runs against it, and closes it
// once the withdrawal rate subsides. It owns the real/predicted-prefix
// bookkeeping a completed burst is graded against.
package burst

import (
	"swift-predict/internal/bpa"
)

// predictedPrefix is one prefix the controller believes was affected by a
// predicted edge, tagged with whether the encoding could actually carry a
// reroute for it and the AS-path depth at which the edge was found.
type predictedPrefix struct {
	prefix   string
	encoded  bool
	depth    int
}

// Burst is one withdrawal-burst episode for a single peer: the set of
// prefixes genuinely withdrawn during it (real_prefixes), the set BPA
// believes were affected (predicted_prefixes), and the predicted edges
// accumulated across every periodic BPA run during its lifetime.
type Burst struct {
	PeerID    string
	StartTime float64
	LastTime  float64

	// ts100thW holds the arrival time of the 100th withdrawal seen
	// in this burst's window (or the oldest one still queued, if fewer
	// than 100 have arrived), an early estimate of when the underlying
	// failure actually started.
	ts100thW float64

	// DeletedFromWQueue holds withdrawal records evicted from the live
	// window while this burst was active; they stay attributable to the
	// burst until it closes, at which point they're released back to the
	// topology graph.
	DeletedFromWQueue []WRecord

	realPrefixes      map[string]struct{}
	predictedPrefixes map[string]predictedPrefix
	edges             map[bpa.Link]struct{}

	closed bool
}

// WRecord is the minimal shape burst bookkeeping needs from a withdrawn
// route: its prefix, AS path, and arrival time.
type WRecord struct {
	Prefix string
	ASPath []int64
	Time   float64
}

// Timestamp satisfies window.Timestamped so WRecord can ride the same
// sliding-window queue type used for the live withdrawal window.
func (r WRecord) Timestamp() float64 { return r.Time }

// New opens a burst starting at startTime. wQueueAt100 is the timestamp of
// the 100th-oldest record in the window at creation time (or the oldest
// record's time if the window holds fewer than 100), establishing the
// ts_100th_w estimate recorded for this burst.
func New(peerID string, startTime, wQueueAt100 float64) *Burst {
	return &Burst{
		PeerID:            peerID,
		StartTime:         startTime,
		LastTime:          startTime,
		ts100thW:          wQueueAt100,
		realPrefixes:      make(map[string]struct{}),
		predictedPrefixes: make(map[string]predictedPrefix),
		edges:             make(map[bpa.Link]struct{}),
	}
}

// Ts100thW returns the 100th-withdrawal time estimate recorded at burst
// creation.
func (b *Burst) Ts100thW() float64 { return b.ts100thW }

// Touch advances the burst's last-seen timestamp.
func (b *Burst) Touch(ts float64) {
	if ts > b.LastTime {
		b.LastTime = ts
	}
}

// Duration returns the burst's observed lifetime so far.
func (b *Burst) Duration() float64 { return b.LastTime - b.StartTime }

// Stop marks the burst as closed. A closed burst accepts no further
// prefixes or edges.
func (b *Burst) Stop() { b.closed = true }

// IsExpired reports whether Stop has been called.
func (b *Burst) IsExpired() bool { return b.closed }

// AddRealPrefix records prefix as genuinely withdrawn during this burst.
func (b *Burst) AddRealPrefix(prefix string) {
	b.realPrefixes[prefix] = struct{}{}
}

// AddPredictedPrefix records prefix as one BPA's predicted edges imply was
// affected, along with whether the encoding could tag a reroute for it and
// the depth at which the implicated edge sits on its path. A prefix
// already predicted keeps its first recorded depth/encoded state.
func (b *Burst) AddPredictedPrefix(prefix string, encoded bool, depth int) {
	if _, ok := b.predictedPrefixes[prefix]; ok {
		return
	}
	b.predictedPrefixes[prefix] = predictedPrefix{prefix: prefix, encoded: encoded, depth: depth}
}

// AddPredictedPrefix2 is the bulk counterpart of AddPredictedPrefix, used
// when re-scanning a list of retained withdrawal records (such as
// DeletedFromWQueue) for a newly predicted edge: every record whose AS path
// traverses edge has its prefix added.
func (b *Burst) AddPredictedPrefix2(records []WRecord, edge bpa.Link, encoded bool, depth int) {
	for _, r := range records {
		if pathHasEdge(r.ASPath, edge) {
			b.AddPredictedPrefix(r.Prefix, encoded, depth)
		}
	}
}

// AddEdge records edge as one BPA identified as part of a predicted
// failure during this burst's lifetime. Returns true if the edge was not
// already recorded.
func (b *Burst) AddEdge(edge bpa.Link) bool {
	if _, ok := b.edges[edge]; ok {
		return false
	}
	b.edges[edge] = struct{}{}
	return true
}

// Edges returns every distinct predicted edge accumulated across this
// burst's periodic BPA runs.
func (b *Burst) Edges() []bpa.Link {
	out := make([]bpa.Link, 0, len(b.edges))
	for e := range b.edges {
		out = append(out, e)
	}
	return out
}

// RealPrefixCount returns the number of distinct prefixes genuinely
// withdrawn during this burst.
func (b *Burst) RealPrefixCount() int { return len(b.realPrefixes) }

// PredictedPrefixCount returns the number of distinct prefixes predicted
// affected during this burst.
func (b *Burst) PredictedPrefixCount() int { return len(b.predictedPrefixes) }

// Len returns the number of real prefixes recorded, mirroring the size a
// burst reports for the periodic-BPA-scheduling threshold.
func (b *Burst) Len() int { return len(b.realPrefixes) }

// RealPrefixes returns every prefix recorded as genuinely withdrawn
// during this burst, for the per-burst real-prefix log.
func (b *Burst) RealPrefixes() []string {
	out := make([]string, 0, len(b.realPrefixes))
	for p := range b.realPrefixes {
		out = append(out, p)
	}
	return out
}

// PredictedPrefixInfo is one prefix BPA attributed to this burst, for the
// per-burst predicted-prefix log.
type PredictedPrefixInfo struct {
	Prefix  string
	Encoded bool
	Depth   int
}

// PredictedPrefixes returns every prefix BPA attributed to this burst.
func (b *Burst) PredictedPrefixes() []PredictedPrefixInfo {
	out := make([]PredictedPrefixInfo, 0, len(b.predictedPrefixes))
	for _, p := range b.predictedPrefixes {
		out = append(out, PredictedPrefixInfo{Prefix: p.prefix, Encoded: p.encoded, Depth: p.depth})
	}
	return out
}

func pathHasEdge(path []int64, e bpa.Link) bool {
	for i := 0; i+1 < len(path); i++ {
		if path[i] == e.From && path[i+1] == e.To {
			return true
		}
	}
	return false
}
