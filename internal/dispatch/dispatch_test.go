package dispatch

import (
	"bytes"
	"context"
	"testing"
	"time"

	"swift-predict/internal/burst"
	"swift-predict/internal/peer"
)

type bufConn struct{ bytes.Buffer }

func (c *bufConn) Close() error { return nil }

func testConfig() peer.Config {
	return peer.Config{
		WinSize:              60,
		StartThreshold:       50,
		EndThreshold:         35,
		MinBpaBurstSize:      100,
		BpaFreq:              100,
		PW:                   1,
		RW:                   1,
		Algo:                 burst.AlgoNaive,
		NbBitsASPath:         33,
		RunEncodingThreshold: 1_000_000,
		MinPercentile:        50,
		GlobalRIBEnabled:     true,
	}
}

func TestDispatcher_HandleLineRoutesValidRecord(t *testing.T) {
	sup := peer.NewSupervisor(testConfig(), func(string) (peer.GlobalRIBConn, error) { return &bufConn{}, nil }, nil, nil)
	d := NewDispatcher(sup, nil)

	d.HandleLine("BGP4MP|1500000000.0|A|10.0.0.1|65001|10.1.0.0/24|65001 65002 65003")

	if sup.PeerCount() != 1 {
		t.Fatalf("PeerCount() = %d, want 1", sup.PeerCount())
	}
}

func TestDispatcher_HandleLineIgnoresUnparsable(t *testing.T) {
	sup := peer.NewSupervisor(testConfig(), func(string) (peer.GlobalRIBConn, error) { return &bufConn{}, nil }, nil, nil)
	d := NewDispatcher(sup, nil)

	d.HandleLine("GARBAGE|1|2|3")

	if sup.PeerCount() != 0 {
		t.Fatalf("PeerCount() = %d, want 0 after an unparsable line", sup.PeerCount())
	}
}

func TestTCPFeed_RunReturnsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	feed := NewTCPFeed("127.0.0.1:0", nil)
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx, func(string) {}) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
