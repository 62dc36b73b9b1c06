package astopo

import (
	"fmt"
	"io"
	"math"
)

// WriteDOT dumps a Graphviz description of the edges whose weight exceeds
// threshold, each labeled with its weight within g relative to total
// (the global topology it was drawn from) and the resulting Fowlkes-Mallows
// score against an all-prefixes baseline. Mirrors the original project's
// debug graph dump used to visually inspect candidate bursts.
func WriteDOT(w io.Writer, peerAS int64, g, total *Graph, allPrefixes float64, threshold float64) error {
	if _, err := fmt.Fprintf(w, "digraph G {\n%d [color=red];\n", peerAS); err != nil {
		return err
	}

	for _, e := range g.Edges() {
		if e.Weight <= threshold {
			continue
		}
		gwCounter := e.Weight
		gCounter := total.EdgeWeight(e.From, e.To) + gwCounter

		score := fowlkesMallowsDebug(gwCounter, gCounter, allPrefixes-gwCounter, 1, 3)
		if _, err := fmt.Fprintf(w, "%d -> %d [label=\"%d/%d (%.2f)\"];\n",
			e.From, e.To, int64(gwCounter), int64(gCounter), score); err != nil {
			return err
		}
	}

	_, err := fmt.Fprint(w, "}")
	return err
}

func fowlkesMallowsDebug(tp, fp, fn, wp, wr float64) float64 {
	if tp <= 0 || tp+fp <= 0 || tp+fn <= 0 {
		return 0
	}
	return math.Exp((wp*math.Log(tp/(tp+fp)) + wr*math.Log(tp/(tp+fn))) / (wp + wr))
}
