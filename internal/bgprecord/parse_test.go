package bgprecord

import "testing"

func TestParse_BGP4MP_Advertisement(t *testing.T) {
	line := "BGP4MP|1500000000.0|A|10.0.0.1|65001|10.1.0.0/24|65001 65002 65003"
	rec, err := Parse(line)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a record, got nil")
	}
	if rec.Type != TypeAdvertisement {
		t.Errorf("Type = %q, want A", rec.Type)
	}
	if rec.PeerID != "10.0.0.1" {
		t.Errorf("PeerID = %q", rec.PeerID)
	}
	want := []int64{65001, 65002, 65003}
	if len(rec.ASPath) != len(want) {
		t.Fatalf("ASPath = %v, want %v", rec.ASPath, want)
	}
	for i := range want {
		if rec.ASPath[i] != want[i] {
			t.Errorf("ASPath[%d] = %d, want %d", i, rec.ASPath[i], want[i])
		}
	}
}

func TestParse_BGP4MP_Withdrawal(t *testing.T) {
	rec, err := Parse("BGP4MP|1500000000.0|W|10.0.0.1|65001|10.1.0.0/24")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Type != TypeWithdrawal {
		t.Errorf("Type = %q, want W", rec.Type)
	}
	if rec.Prefix != "10.1.0.0/24" {
		t.Errorf("Prefix = %q", rec.Prefix)
	}
}

func TestParse_TableDump2(t *testing.T) {
	rec, err := Parse("TABLE_DUMP2|1500000000.0|B|10.0.0.1|65001|10.1.0.0/24|65001 65002")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Type != TypeAdvertisement {
		t.Errorf("Type = %q, want A", rec.Type)
	}
}

func TestParse_BGPStream(t *testing.T) {
	rec, err := Parse("BGPSTREAM|rrc00|A|10.0.0.1|65001|1500000000.0|10.1.0.0/24|65001 65002")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.PeerID != "rrc00-10.0.0.1" {
		t.Errorf("PeerID = %q", rec.PeerID)
	}
}

func TestParse_CommentAndBlank(t *testing.T) {
	for _, line := range []string{"", "# a comment"} {
		rec, err := Parse(line)
		if err != nil || rec != nil {
			t.Errorf("Parse(%q) = %v, %v; want nil, nil", line, rec, err)
		}
	}
}

func TestParse_Unrecognized(t *testing.T) {
	if _, err := Parse("GARBAGE|1|2|3"); err != ErrUnrecognized {
		t.Errorf("err = %v, want ErrUnrecognized", err)
	}
}

func TestCleanASPath_Prepending(t *testing.T) {
	got := CleanASPath([]int64{1, 2, 2, 2, 3, 4, 4})
	want := []int64{1, 2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestCleanASPath_Loop(t *testing.T) {
	got := CleanASPath([]int64{1, 2, 3, 2, 4})
	if got != nil {
		t.Errorf("got %v, want nil (loop detected)", got)
	}
}

func TestCleanASPath_Empty(t *testing.T) {
	got := CleanASPath(nil)
	if len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}
