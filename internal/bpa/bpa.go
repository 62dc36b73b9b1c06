// Package bpa implements the burst prediction algorithm: scoring candidate
// failed AS links against the withdrawal window using a weighted
// Fowlkes-Mallows score of the withdrawn-prefix overlap between the
// long-term topology graph and the windowed one.
package bpa

import (
	"math"
	"sort"

	"swift-predict/internal/astopo"
)

// Link is a directed AS adjacency identified as part of a predicted
// failure.
type Link struct {
	From, To int64
}

// Result is the canonical outcome of a BPA search: the predicted edge
// set, its score, and the true/false positive/negative counts that
// produced it. Every search function returns this exact shape so call
// sites never need to unpack positional tuples.
type Result struct {
	Edges []Link
	Score float64
	TP    float64
	FP    float64
	FN    float64
}

// ambiguousSentinel marks TP/FP/FN as meaningless because the winning
// score was reached by more than one independent edge set (a tie between
// distinct from_node/to_node searches), so there is no single count to
// report.
const ambiguousSentinel = -1

// FowlkesMallows computes the weighted Fowlkes-Mallows score for a
// candidate edge set with the given true/false positive/negative counts.
// It returns 0 if TP is non-positive (no overlap to score).
func FowlkesMallows(tp, fp, fn, wp, wr float64) float64 {
	if tp <= 0 {
		return 0
	}
	return math.Exp((wp*math.Log(tp/(tp+fp)) + wr*math.Log(tp/(tp+fn))) / (wp + wr))
}

// FindNaive aggregates every edge leaving fromNode in either graph into a
// single candidate set and scores it as one unit. Used when the peer AS
// set is small enough that per-edge search isn't worthwhile.
func FindNaive(g, gw *astopo.Graph, wNb float64, fromNode int64, wp, wr float64) Result {
	toNodes := make(map[int64]struct{})
	for _, s := range gw.Successors(fromNode) {
		toNodes[s] = struct{}{}
	}
	for _, s := range g.Successors(fromNode) {
		toNodes[s] = struct{}{}
	}

	var tp, fp float64
	edges := make([]Link, 0, len(toNodes))
	for to := range toNodes {
		edges = append(edges, Link{fromNode, to})
		tp += gw.EdgeWeight(fromNode, to)
		fp += g.EdgeWeight(fromNode, to)
	}
	fn := wNb - tp

	var score float64
	if tp > 0 {
		score = FowlkesMallows(tp, fp, fn, wp, wr)
	}

	return Result{Edges: edges, Score: score, TP: tp, FP: fp, FN: fn}
}

// FindSingle scores every individual edge leaving a watermark-crossed
// node in gw and returns the single best-scoring edge.
func FindSingle(g, gw *astopo.Graph, wNb float64, wp, wr float64) Result {
	var best Result

	for from := range gw.NodesForward {
		for _, to := range gw.Successors(from) {
			tp := gw.EdgeWeight(from, to)
			fp := g.EdgeWeight(from, to)
			fn := wNb - tp

			if tp <= 0 {
				continue
			}
			score := FowlkesMallows(tp, fp, fn, wp, wr)
			if score > best.Score {
				best = Result{Edges: []Link{{from, to}}, Score: score, TP: tp, FP: fp, FN: fn}
			}
		}
	}
	return best
}

type scoredNeighbor struct {
	node  int64
	tp    float64
	fp    float64
	fn    float64
	score float64
}

// FindForward runs the greedy forward search: for each watermark-crossed
// source node in gw, its outgoing neighbors are ranked by individual FM
// score and added one at a time for as long as the cumulative score keeps
// improving (a tie with the running best merges into the winning set with
// TP/FP/FN marked ambiguous). opti, when true, stops each node's greedy
// pass at the first non-improving neighbor rather than scanning all of
// them.
func FindForward(g, gw *astopo.Graph, wNb float64, wp, wr float64, opti bool) Result {
	var best Result

	for from := range gw.NodesForward {
		current := greedyAccumulate(wNb, wp, wr, opti, from, gw.Successors(from),
			func(pivot, n int64) (tp, fp float64) { return gw.EdgeWeight(pivot, n), g.EdgeWeight(pivot, n) },
			func(pivot, n int64) Link { return Link{pivot, n} })

		best = mergeBest(best, current)
	}
	return best
}

// FindBackward is the mirror of FindForward over predecessors of
// watermark-crossed destination nodes.
func FindBackward(g, gw *astopo.Graph, wNb float64, wp, wr float64, opti bool) Result {
	var best Result

	for to := range gw.NodesBackward {
		current := greedyAccumulate(wNb, wp, wr, opti, to, gw.Predecessors(to),
			func(pivot, n int64) (tp, fp float64) { return gw.EdgeWeight(n, pivot), g.EdgeWeight(n, pivot) },
			func(pivot, n int64) Link { return Link{n, pivot} })

		best = mergeBest(best, current)
	}
	return best
}

// greedyAccumulate scores each candidate neighbor of pivot using
// weightOf (oriented correctly for a forward or backward search by the
// caller), sorts them best-score-first, and greedily grows a running
// edge set while the cumulative FM score keeps improving. edgeOf builds
// the Link for a given (pivot, neighbor) pair in the caller's preferred
// direction.
func greedyAccumulate(wNb, wp, wr float64, opti bool, pivot int64, candidates []int64, weightOf func(pivot, n int64) (tp, fp float64), edgeOf func(pivot, n int64) Link) Result {
	neighbors := make([]scoredNeighbor, 0, len(candidates))
	for _, n := range candidates {
		tp, fp := weightOf(pivot, n)
		if tp <= 0 {
			continue
		}
		fn := wNb - tp
		neighbors = append(neighbors, scoredNeighbor{n, tp, fp, fn, FowlkesMallows(tp, fp, fn, wp, wr)})
	}

	sort.SliceStable(neighbors, func(i, j int) bool { return neighbors[i].score > neighbors[j].score })

	var current Result
	for _, ngh := range neighbors {
		newTP := current.TP + ngh.tp
		newFP := current.FP + ngh.fp
		newFN := wNb - newTP

		newScore := FowlkesMallows(newTP, newFP, newFN, wp, wr)
		if newScore > current.Score {
			current.Edges = append(current.Edges, edgeOf(pivot, ngh.node))
			current.TP = newTP
			current.FP = newFP
			current.FN = newFN
			current.Score = newScore
		} else if opti {
			break
		}
	}
	return current
}

func mergeBest(best, current Result) Result {
	switch {
	case current.Score > best.Score:
		return current
	case current.Score == best.Score && current.Score > 0:
		best.Edges = append(best.Edges, current.Edges...)
		best.TP, best.FP, best.FN = ambiguousSentinel, ambiguousSentinel, ambiguousSentinel
		return best
	default:
		return best
	}
}
