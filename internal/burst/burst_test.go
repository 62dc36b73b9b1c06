package burst

import (
	"testing"

	"swift-predict/internal/astopo"
	"swift-predict/internal/bpa"
	"swift-predict/internal/window"
)

func TestController_OpensAtSecondRecord(t *testing.T) {
	cfg := Config{StartThreshold: 2, EndThreshold: 1, PW: 1, RW: 1, Algo: AlgoSingle}
	c := NewController("peer1", cfg)
	wq := window.New[WRecord](10)
	gw := astopo.New(1, true)

	c.RecordWithdrawal(WRecord{Prefix: "10.0.0.0/24", ASPath: []int64{1, 2}, Time: 0}, wq)
	if _, opened := c.Advance(0, wq, gw); opened {
		t.Fatal("burst should not open on the first withdrawal")
	}
	if c.Active() {
		t.Fatal("controller should still be idle after one withdrawal")
	}

	c.RecordWithdrawal(WRecord{Prefix: "10.0.1.0/24", ASPath: []int64{1, 2}, Time: 1}, wq)
	_, opened := c.Advance(1, wq, gw)
	if !opened {
		t.Fatal("burst should open once the window reaches start_threshold")
	}
	if !c.Active() {
		t.Fatal("controller should be active after opening")
	}
}

func TestController_ClosesWhenWindowDrainsBelowEndThreshold(t *testing.T) {
	cfg := Config{StartThreshold: 2, EndThreshold: 1, PW: 1, RW: 1, Algo: AlgoSingle}
	c := NewController("peer1", cfg)
	wq := window.New[WRecord](2)
	gw := astopo.New(1, true)

	gw.Add([]int64{1, 2}, "p1")
	c.RecordWithdrawal(WRecord{Prefix: "p1", ASPath: []int64{1, 2}, Time: 0}, wq)
	c.Advance(0, wq, gw)
	gw.Add([]int64{1, 2}, "p2")
	c.RecordWithdrawal(WRecord{Prefix: "p2", ASPath: []int64{1, 2}, Time: 1}, wq)
	c.Advance(1, wq, gw)

	if !c.Active() {
		t.Fatal("expected an active burst before the window drains")
	}

	// Advancing far enough that both window entries expire (window size 2)
	// should drop the queue below end_threshold and close the burst.
	closed, _ := c.Advance(10, wq, gw)
	if closed == nil {
		t.Fatal("expected the burst to close once the window drained")
	}
	if !closed.IsExpired() {
		t.Error("returned burst should be marked closed")
	}
	if c.Active() {
		t.Error("controller should be idle after closing")
	}
}

func TestController_MaybeRunBPA_RespectsSchedule(t *testing.T) {
	cfg := Config{StartThreshold: 1, EndThreshold: 1, MinBpaBurstSize: 5, BpaFreq: 0, PW: 1, RW: 1, Algo: AlgoSingle}
	c := NewController("peer1", cfg)
	wq := window.New[WRecord](100)
	gw := astopo.New(1, true)

	c.RecordWithdrawal(WRecord{Prefix: "p1", ASPath: []int64{1, 2}, Time: 0}, wq)
	c.Advance(1, wq, gw)
	if !c.Active() {
		t.Fatal("expected an active burst")
	}

	if _, ran := c.MaybeRunBPA(1, gw, gw); ran {
		t.Fatal("BPA should not run before burst size reaches min_bpa_burst_size")
	}
}

func TestBurst_AddEdgeDeduplicates(t *testing.T) {
	b := New("peer1", 0, 0)
	if !b.AddEdge(bpa.Link{From: 1, To: 2}) {
		t.Fatal("first AddEdge should report a new edge")
	}
	if b.AddEdge(bpa.Link{From: 1, To: 2}) {
		t.Fatal("re-adding the same edge should report false")
	}
	if len(b.Edges()) != 1 {
		t.Fatalf("expected 1 distinct edge, got %d", len(b.Edges()))
	}
}

func TestBurst_AddPredictedPrefixKeepsFirstDepth(t *testing.T) {
	b := New("peer1", 0, 0)
	b.AddPredictedPrefix("10.0.0.0/24", true, 2)
	b.AddPredictedPrefix("10.0.0.0/24", false, 5)

	if b.PredictedPrefixCount() != 1 {
		t.Fatalf("expected 1 predicted prefix, got %d", b.PredictedPrefixCount())
	}
	if got := b.predictedPrefixes["10.0.0.0/24"]; got.depth != 2 || !got.encoded {
		t.Errorf("second AddPredictedPrefix call should not overwrite the first: got %+v", got)
	}
}

func TestValidationController_GroundTruthThresholdCrossing(t *testing.T) {
	c := NewValidationController("peer1", 2, 1)
	uq := window.New[WRecord](10)

	c.Record(WRecord{Prefix: "p1", Time: 0}, uq)
	c.Advance(0, uq)
	if c.Active() {
		t.Fatal("should not open on the first record")
	}

	c.Record(WRecord{Prefix: "p2", Time: 1}, uq)
	_, opened := c.Advance(1, uq)
	if !opened || !c.Active() {
		t.Fatal("should open once the combined window reaches start_threshold")
	}
}
