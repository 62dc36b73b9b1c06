package astopo

import "testing"

func TestGraph_AddThreeAnnouncements(t *testing.T) {
	g := New(1000, false)

	g.Add([]int64{1, 2, 3}, "10.0.0.0/24")
	g.Add([]int64{1, 2, 4}, "10.0.1.0/24")
	g.Add([]int64{1, 2, 3}, "10.0.2.0/24")

	if w := g.EdgeWeight(1, 2); w != 3 {
		t.Errorf("(1,2).weight = %v, want 3", w)
	}
	if w := g.EdgeWeight(2, 3); w != 2 {
		t.Errorf("(2,3).weight = %v, want 2", w)
	}
	if w := g.EdgeWeight(2, 4); w != 1 {
		t.Errorf("(2,4).weight = %v, want 1", w)
	}
	if n := g.nodes[1]; n.outPrefixes != 3 {
		t.Errorf("node 1 out = %d, want 3", n.outPrefixes)
	}
	if n := g.nodes[2]; n.inPrefixes != 3 || n.outPrefixes != 3 {
		t.Errorf("node 2 in/out = %d/%d, want 3/3", n.inPrefixes, n.outPrefixes)
	}
}

func TestGraph_RemoveAfterAdd(t *testing.T) {
	g := New(1000, false)

	g.Add([]int64{1, 2, 3}, "10.0.0.0/24")
	g.Add([]int64{1, 2, 4}, "10.0.1.0/24")
	g.Add([]int64{1, 2, 3}, "10.0.2.0/24")

	g.Remove([]int64{1, 2, 3}, "10.0.2.0/24")

	if w := g.EdgeWeight(2, 3); w != 1 {
		t.Errorf("(2,3).weight = %v, want 1", w)
	}
	if w := g.EdgeWeight(1, 2); w != 2 {
		t.Errorf("(1,2).weight = %v, want 2", w)
	}
}

func TestGraph_WatermarkCrossingIsExact(t *testing.T) {
	g := New(2, false)

	g.Add([]int64{1, 2}, "p1")
	if _, ok := g.NodesForward[1]; ok {
		t.Fatal("node 1 entered NodesForward before reaching threshold")
	}

	g.Add([]int64{1, 2}, "p2")
	if _, ok := g.NodesForward[1]; !ok {
		t.Fatal("node 1 should enter NodesForward at out_prefixes == threshold")
	}

	g.Remove([]int64{1, 2}, "p2")
	if _, ok := g.NodesForward[1]; ok {
		t.Fatal("node 1 should leave NodesForward once out_prefixes drops below threshold")
	}
}

func TestGraph_AddRemoveRoundTrip(t *testing.T) {
	g := New(1000, false)
	g.Add([]int64{1, 2, 3}, "10.0.0.0/24")
	g.Remove([]int64{1, 2, 3}, "10.0.0.0/24")

	if len(g.nodes) != 0 || len(g.edges) != 0 {
		t.Errorf("expected empty graph after add/remove round trip, got %d nodes, %d edges", len(g.nodes), len(g.edges))
	}
}

func TestGraph_GetDepth(t *testing.T) {
	g := New(1000, false)
	g.Add([]int64{1, 2, 3, 4}, "p1")

	if d := g.GetDepth(1, 2); d != 1 {
		t.Errorf("GetDepth(1,2) = %d, want 1", d)
	}
	if d := g.GetDepth(2, 3); d != 2 {
		t.Errorf("GetDepth(2,3) = %d, want 2", d)
	}
	if d := g.GetDepth(99, 100); d != -1 {
		t.Errorf("GetDepth for missing edge = %d, want -1", d)
	}
}
