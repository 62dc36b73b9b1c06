package globalrib

import (
	"bytes"
	"testing"

	"go.uber.org/zap"
)

type stubWriter struct {
	bytes.Buffer
}

func zapNop() *zap.Logger {
	return zap.NewNop()
}

func TestRIB_AnnounceShortestPathWins(t *testing.T) {
	r := New()

	r.Announce(&Route{Prefix: "1.0.0.0/24", PeerIP: "1.1.1.1", ASPath: []int64{12, 13, 14}})
	r.Announce(&Route{Prefix: "1.0.0.0/24", PeerIP: "2.1.1.1", ASPath: []int64{12, 20, 15, 14}})
	r.Announce(&Route{Prefix: "1.0.0.0/24", PeerIP: "3.1.1.1", ASPath: []int64{12, 13, 34, 14, 15, 67, 6}})

	best := r.Best("1.0.0.0/24")
	if best == nil || best.PeerIP != "1.1.1.1" {
		t.Fatalf("expected peer 1.1.1.1 (shortest path) as primary, got %+v", best)
	}
}

func TestRIB_GetBackupAvoidingASLink(t *testing.T) {
	r := New()
	r.Announce(&Route{Prefix: "1.0.0.0/24", PeerIP: "1.1.1.1", ASPath: []int64{12, 13, 14}})
	r.Announce(&Route{Prefix: "1.0.0.0/24", PeerIP: "2.1.1.1", ASPath: []int64{12, 20, 15, 14}})
	r.Announce(&Route{Prefix: "1.0.0.0/24", PeerIP: "3.1.1.1", ASPath: []int64{12, 13, 34, 14, 15, 67, 6}})

	// (20,15) is only on 2.1.1.1's path, in neither direction on 3.1.1.1's
	// (which touches 14/15 but never adjacent to 20), so the two routes
	// genuinely diverge on this link and exercise both branches below.
	link := ASLink{20, 15}

	backup := r.GetBackupAvoidingASLink("1.1.1.1", "1.0.0.0/24", link, false)
	if backup == nil || backup.PeerIP != "3.1.1.1" {
		t.Fatalf("expected peer 3.1.1.1 (the only alternate avoiding (20,15)), got %+v", backup)
	}

	traditional := r.GetBackupAvoidingASLink("1.1.1.1", "1.0.0.0/24", link, true)
	if traditional == nil || traditional.PeerIP != "2.1.1.1" {
		t.Fatalf("expected peer 2.1.1.1 (first alternate, link-avoidance skipped), got %+v", traditional)
	}
}

func TestRIB_WithdrawPromotesNextBest(t *testing.T) {
	r := New()
	r.Announce(&Route{Prefix: "p", PeerIP: "1.1.1.1", ASPath: []int64{1, 2}})
	r.Announce(&Route{Prefix: "p", PeerIP: "2.2.2.2", ASPath: []int64{1, 2, 3}})

	_, newBest, withdrawn, _, _ := r.Withdraw("1.1.1.1", "p")
	if withdrawn == nil || withdrawn.PeerIP != "1.1.1.1" {
		t.Fatalf("expected to withdraw 1.1.1.1's route, got %+v", withdrawn)
	}
	if newBest == nil || newBest.PeerIP != "2.2.2.2" {
		t.Fatalf("expected 2.2.2.2 to become primary after withdrawal, got %+v", newBest)
	}
}

func TestRIB_WithdrawLastRouteEmptiesPrefix(t *testing.T) {
	r := New()
	r.Announce(&Route{Prefix: "p", PeerIP: "1.1.1.1", ASPath: []int64{1, 2}})
	_, newBest, _, _, _ := r.Withdraw("1.1.1.1", "p")
	if newBest != nil {
		t.Fatalf("expected no remaining route, got %+v", newBest)
	}
	if r.Len() != 0 {
		t.Errorf("prefix map should be empty once its last route is withdrawn, got len %d", r.Len())
	}
}

func TestCompare_DistinctPathsNeverEqual(t *testing.T) {
	a := &Route{PeerIP: "1.1.1.1", ASPath: []int64{1, 2, 3}}
	b := &Route{PeerIP: "1.1.1.1", ASPath: []int64{1, 2, 4}}
	if Compare(a, b) == 0 {
		t.Error("routes with equal length, equal peer IP, distinct paths must not compare equal")
	}
}

func TestServer_HandleLine_AdvertisementEmitsPrimaryChange(t *testing.T) {
	rib := New()
	tags, err := NewTagGenerator(rib, 3, 4, "2.0.0.128/25", nil)
	if err != nil {
		t.Fatal(err)
	}
	var out stubWriter
	s := NewServer(rib, tags, nil, zapNop(), &out, 300)

	if err := s.HandleLine("1.1.1.1|1.0.0.0/24|0|12 13 14|00000000"); err != nil {
		t.Fatalf("HandleLine: %v", err)
	}
	if out.String() == "" {
		t.Error("expected an A| line on the first advertisement for a prefix")
	}
}

func TestServer_HandleLine_WithdrawalOfLastRouteEmitsW(t *testing.T) {
	rib := New()
	tags, err := NewTagGenerator(rib, 3, 4, "2.0.0.128/25", nil)
	if err != nil {
		t.Fatal(err)
	}
	var out stubWriter
	s := NewServer(rib, tags, nil, zapNop(), &out, 300)

	s.HandleLine("1.1.1.1|1.0.0.0/24|0|12 13 14|00000000")
	out.Reset()

	if err := s.HandleLine("1.1.1.1|1.0.0.0/24|1"); err != nil {
		t.Fatalf("HandleLine: %v", err)
	}
	if got := out.String(); got != "W|1.0.0.0/24\n" {
		t.Errorf("expected withdrawal line, got %q", got)
	}
}
