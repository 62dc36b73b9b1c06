package encoding

import (
	"math"
	"sort"

	"swift-predict/internal/astopo"
)

// link identifies one AS-path edge as encoded at a specific depth.
type link struct {
	from, to int64
}

// candidate is one (edge, depth) entry ranked by withdrawn-prefix count
// during compute_encoding/refresh; Count ascending matches the source's
// sortedlist ordering, where the highest-priority entry sits last.
type candidate struct {
	count    int
	from, to int64
}

// Encoding is the per-peer bitfield encoding engine: one Mapping per
// AS-path depth (2..maxDepth+1), each one storing codes for the AS numbers
// that appear on the most heavily withdrawn edges at that depth.
type Encoding struct {
	peerID        string
	g             *astopo.Graph
	maxBytes      int
	minPercentile float64
	maxDepth      int

	mapping        map[int]*Mapping
	encodedASLinks map[int]map[link]struct{}
	minimum        map[int]float64
}

// DefaultMaxDepth is the deepest AS-path position the encoding engine (and
// the global RIB's virtual MAC layout, which must agree with it) encodes.
const DefaultMaxDepth = 4

// New returns an Encoding engine bound to g, the peer's long-lived AS
// topology graph.
func New(peerID string, g *astopo.Graph, maxBytes int, minPercentile float64) *Encoding {
	return &Encoding{
		peerID:         peerID,
		g:              g,
		maxBytes:       maxBytes,
		minPercentile:  minPercentile,
		maxDepth:       DefaultMaxDepth,
		mapping:        make(map[int]*Mapping),
		encodedASLinks: make(map[int]map[link]struct{}),
		minimum:        make(map[int]float64),
	}
}

// computeSortedList buckets every (edge, depth) currently in g by depth,
// restricted to depths in (1, maxDepth] and, if depthWanted is non-nil,
// further restricted to that set. Each bucket is sorted ascending by
// withdrawn-prefix count so the highest-priority candidate is last.
func (e *Encoding) computeSortedList(depthWanted map[int]bool) map[int][]candidate {
	buckets := make(map[int][]candidate)

	for _, dc := range e.g.DepthCounts() {
		if dc.Depth <= 1 || dc.Depth > e.maxDepth {
			continue
		}
		if depthWanted != nil && !depthWanted[dc.Depth] {
			continue
		}
		buckets[dc.Depth] = append(buckets[dc.Depth], candidate{count: dc.Count, from: dc.From, to: dc.To})
	}

	for d := range buckets {
		sort.Slice(buckets[d], func(i, j int) bool { return buckets[d][i].count < buckets[d][j].count })
	}
	return buckets
}

// ComputeEncoding (re)builds the static encoding from scratch, greedily
// assigning bit budget to the highest-withdrawn-count AS links first
// until max_bytes-2 total bits are spent, then bumps depths 2 and 3 by
// one extra bit each for headroom.
func (e *Encoding) ComputeEncoding() {
	buckets := e.computeSortedList(nil)

	minimumTmp := make(map[int][]int)
	e.encodedASLinks = make(map[int]map[link]struct{})
	for d := range buckets {
		e.encodedASLinks[d] = make(map[link]struct{})
		minimumTmp[d] = nil
	}

	e.mapping = make(map[int]*Mapping)
	totalBytes := 0

	for {
		var bestDepth int
		var best []candidate

		for d, bucket := range buckets {
			if len(bucket) == 0 {
				continue
			}
			if best == nil || bucket[len(bucket)-1].count > best[len(best)-1].count {
				best = bucket
				bestDepth = d
			}
		}

		if best == nil {
			for totalBytes < e.maxBytes-2 {
				var toIncrease *Mapping
				for _, m := range e.mapping {
					if toIncrease == nil || toIncrease.FreeLen() > m.FreeLen() {
						toIncrease = m
					}
				}
				if toIncrease == nil {
					break
				}
				toIncrease.AddByte()
				totalBytes++
			}
			break
		}

		depth := bestDepth
		next := best[len(best)-1]

		if e.mapping[depth] == nil {
			e.mapping[depth] = NewMapping()
		}
		if e.mapping[depth+1] == nil {
			e.mapping[depth+1] = NewMapping()
		}

		bytesToAdd := e.mapping[depth].IsAvailable(next.from, true, 0) +
			e.mapping[depth+1].IsAvailable(next.to, true, 0)

		if totalBytes+bytesToAdd <= e.maxBytes-2 {
			if tmp1, _ := e.mapping[depth].Add(next.from, true, true); tmp1 >= 1 {
				totalBytes += tmp1
			}
			if tmp2, _ := e.mapping[depth+1].Add(next.to, false, true); tmp2 >= 1 {
				totalBytes += tmp2
			}

			e.encodedASLinks[depth][link{next.from, next.to}] = struct{}{}

			if totalBytes >= e.maxBytes-2 {
				e.mapping[depth].Block()
				e.mapping[depth+1].Block()
			}

			minimumTmp[depth] = append(minimumTmp[depth], next.count)
		}

		buckets[depth] = best[:len(best)-1]
	}

	if m, ok := e.mapping[2]; ok {
		m.AddByte()
	}
	if m, ok := e.mapping[3]; ok {
		m.AddByte()
	}

	e.minimum = make(map[int]float64)
	for depth, vec := range minimumTmp {
		if len(vec) > 0 {
			e.minimum[depth] = percentile(vec, e.minPercentile)
		}
	}
}

// Add encodes edge prevAS->nextAS at the given depth if its withdrawn
// count clears the depth's admission threshold and there is room for
// both endpoints. Returns true if a new AS code had to be allocated.
func (e *Encoding) Add(depth int, prevAS, nextAS int64) bool {
	mFrom, okFrom := e.mapping[depth]
	mTo, okTo := e.mapping[depth+1]
	if !okFrom || !okTo {
		return false
	}
	if _, haveMin := e.minimum[depth]; !haveMin {
		return false
	}

	if mFrom.Has(prevAS) && mTo.Has(nextAS) {
		return false
	}

	if mFrom.FreeLen() == 0 {
		e.Refresh(depth)
	}
	if mTo.FreeLen() == 0 {
		e.Refresh(depth + 1)
	}

	if !e.g.HasDepth(prevAS, nextAS, depth) {
		return false
	}
	count := e.g.DepthAt(prevAS, nextAS, depth)
	if e.minimum[depth] >= float64(count) {
		return false
	}

	canBeAdded := true
	if !mFrom.Has(prevAS) && mFrom.IsAvailable(prevAS, false, 0) > 0 {
		canBeAdded = false
	}
	if !mTo.Has(nextAS) && mTo.IsAvailable(nextAS, false, 0) > 0 {
		canBeAdded = false
	}
	if !canBeAdded {
		return false
	}

	_, addedFrom := mFrom.Add(prevAS, true, false)
	_, addedTo := mTo.Add(nextAS, false, false)
	if e.encodedASLinks[depth] == nil {
		e.encodedASLinks[depth] = make(map[link]struct{})
	}
	e.encodedASLinks[depth][link{prevAS, nextAS}] = struct{}{}

	return addedFrom || addedTo
}

// Remove unencodes edge prevAS->nextAS at depth and returns the control
// plane overhead (the withdrawn-prefix count that had relied on this
// encoded shortcut).
func (e *Encoding) Remove(depth int, prevAS, nextAS int64) int {
	if _, ok := e.mapping[depth]; !ok {
		return 0
	}
	if _, ok := e.mapping[depth+1]; !ok {
		return 0
	}
	if _, ok := e.encodedASLinks[depth][link{prevAS, nextAS}]; !ok {
		return 0
	}

	e.mapping[depth].Remove(prevAS, true)
	e.mapping[depth+1].Remove(nextAS, false)
	delete(e.encodedASLinks[depth], link{prevAS, nextAS})

	return e.g.DepthAt(prevAS, nextAS, depth)
}

// Advertisement refreshes the encoding on a route change: withdraws the
// old AS path's now-unused edges, then tries to add each edge of the new
// path.
func (e *Encoding) Advertisement(oldASPath, newASPath []int64) {
	e.Withdraw(oldASPath)
	for i := 0; i+1 < len(newASPath); i++ {
		e.Add(i+1, newASPath[i], newASPath[i+1])
	}
}

// Withdraw unencodes every edge of oldASPath that no longer carries any
// traffic at its depth in the topology graph.
func (e *Encoding) Withdraw(oldASPath []int64) {
	for i := 0; i+1 < len(oldASPath); i++ {
		if !e.g.HasEdge(oldASPath[i], oldASPath[i+1]) || !e.g.HasDepth(oldASPath[i], oldASPath[i+1], i+1) {
			e.Remove(i+1, oldASPath[i], oldASPath[i+1])
		}
	}
}

// Refresh evicts the least-withdrawn encoded edges at depthTargeted (and
// its depth-1 neighbor) until at most half of depthTargeted's code space
// is occupied, recomputing the admission threshold from what remains.
func (e *Encoding) Refresh(depthTargeted int) {
	buckets := e.computeSortedList(map[int]bool{depthTargeted - 1: true, depthTargeted: true})

	minimumTmp := make(map[int][]int)
	for d := range buckets {
		minimumTmp[d] = nil
	}

	for {
		var bestDepth int
		var best []candidate

		for d, bucket := range buckets {
			if len(bucket) == 0 {
				continue
			}
			if best == nil {
				best = bucket
				bestDepth = d
				continue
			}
			if bucket[0].count < best[0].count {
				best = bucket
				bestDepth = d
			}
		}

		if best == nil {
			break
		}

		depth := bestDepth
		next := best[0]

		target := e.mapping[depthTargeted]
		if target != nil && target.Len() > (1<<uint(target.NbBytes()-1)) {
			e.Remove(depth, next.from, next.to)
		} else if _, ok := e.encodedASLinks[depth][link{next.from, next.to}]; ok {
			minimumTmp[depth] = append(minimumTmp[depth], next.count)
		}

		buckets[depth] = best[1:]
	}

	for depth, vec := range minimumTmp {
		if len(vec) > 0 {
			e.minimum[depth] = percentile(vec, e.minPercentile)
		}
	}
}

// IsEncoded reports whether edge fromAS->toAS is currently encoded at
// depth.
func (e *Encoding) IsEncoded(depth int, fromAS, toAS int64) bool {
	if depth == 1 {
		m, ok := e.mapping[depth+1]
		if !ok {
			return false
		}
		return m.Has(toAS)
	}
	_, ok := e.encodedASLinks[depth][link{fromAS, toAS}]
	return ok
}

// PrefixIsEncoded locates fromAS->toAS within asPath and reports whether
// the encoding can carry a reroute for it, along with the depth at which
// it was found (-1 if the edge isn't part of asPath).
func (e *Encoding) PrefixIsEncoded(asPath []int64, fromAS, toAS int64) (bool, int) {
	depth := 1
	for i := 0; i+1 < len(asPath); i++ {
		if asPath[i] == fromAS && asPath[i+1] == toAS {
			return e.IsEncoded(depth, fromAS, toAS), depth
		}
		depth++
	}
	return false, -1
}

// Mapping returns the Mapping for a given depth, or nil if none exists.
func (e *Encoding) Mapping(depth int) *Mapping {
	return e.mapping[depth]
}

// MaxDepth returns the deepest AS-path position this engine encodes.
func (e *Encoding) MaxDepth() int { return e.maxDepth }

// MaxBytes returns the configured total bit budget (max_bytes).
func (e *Encoding) MaxBytes() int { return e.maxBytes }

// percentile computes the linear-interpolated percentile (0-100) of vec,
// matching numpy.percentile's default method.
func percentile(vec []int, p float64) float64 {
	sorted := append([]int(nil), vec...)
	sort.Ints(sorted)

	if len(sorted) == 1 {
		return float64(sorted[0])
	}

	rank := (p / 100) * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return float64(sorted[lo])
	}
	frac := rank - float64(lo)
	return float64(sorted[lo])*(1-frac) + float64(sorted[hi])*frac
}
