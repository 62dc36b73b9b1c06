// Package peer keeps one pipeline per BGP peer: it owns that
// peer's adjacency RIB, AS-topology graphs, withdrawal window, burst
// lifecycle controller, and lazily-initialized bitfield encoding, and
// drives them from the stream of parsed records belonging to that peer.
package peer

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"swift-predict/internal/bgprecord"
	"swift-predict/internal/burst"
	"swift-predict/internal/metrics"
)

// Config holds the parameters every peer pipeline is built with, mirroring
// the per-run CLI surface (window size, burst thresholds, BPA tuning, the
// encoding backfill threshold, and whether the global RIB is wired in).
type Config struct {
	WinSize               float64
	StartThreshold        int
	EndThreshold          int
	MinBpaBurstSize       int
	BpaFreq               int
	PW, RW                float64
	Algo                  burst.Algo
	NbBitsASPath          int
	RunEncodingThreshold  int
	MinPercentile         float64
	GlobalRIBEnabled      bool
	Silent                bool
	ValidationEnabled     bool
	MaxPeers              int
}

// DefaultMaxPeers is the hard cap on concurrently tracked peers absent an
// explicit override.
const DefaultMaxPeers = 500

// GlobalRIBConn is the egress connection a pipeline writes advertisement,
// withdrawal, and fast-reroute lines to. *net.UnixConn satisfies it
// directly; tests substitute an in-memory buffer.
type GlobalRIBConn interface {
	Write(p []byte) (int, error)
	Close() error
}

// Dialer opens the egress connection for one peer. Supervisor calls it at
// most once per peer, lazily, on that peer's first message.
type Dialer func(peerID string) (GlobalRIBConn, error)

// BurstSink receives every burst a peer's controller closes, for
// persistence or further scoring against a ValidationController.
type BurstSink interface {
	BurstClosed(peerID string, b *burst.Burst, result BurstResult)
}

// BurstLogger appends the per-burst real/predicted prefix logs and the
// bursts_info summary line. Shared across every peer's pipeline, mirroring
// the single bursts_info handle the source process keeps open.
type BurstLogger interface {
	LogClosed(b *burst.Burst)
}

// BurstResult summarizes a closed burst: how many edges and real and
// predicted prefixes it accumulated over its lifetime, and its duration.
type BurstResult struct {
	Edges      int
	RealPrefix int
	PredPrefix int
	Duration   float64
}

// Supervisor routes incoming records to one pipeline per peer ID, run
// synchronously on the caller's goroutine, enforcing a hard cap on how
// many peers can be tracked at once.
type Supervisor struct {
	cfg       Config
	dial      Dialer
	sink      BurstSink
	burstLog  BurstLogger
	logger    *zap.Logger

	mu       sync.Mutex
	pipes    map[string]*pipeline
	inflight sync.WaitGroup
}

// NewSupervisor returns a Supervisor that builds one pipeline per new peer
// ID seen, dialing the global RIB connection via dial.
func NewSupervisor(cfg Config, dial Dialer, sink BurstSink, logger *zap.Logger) *Supervisor {
	if cfg.MaxPeers <= 0 {
		cfg.MaxPeers = DefaultMaxPeers
	}
	return &Supervisor{
		cfg:    cfg,
		dial:   dial,
		sink:   sink,
		logger: logger,
		pipes:  make(map[string]*pipeline),
	}
}

// SetBurstLogger wires the shared per-burst prefix/summary logger. Must be
// called before the first Dispatch to apply to every pipeline created
// afterward; a nil logger (the default) disables burst-log file output.
func (s *Supervisor) SetBurstLogger(bl BurstLogger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.burstLog = bl
}

// Dispatch routes rec to its peer's pipeline, creating one if this is the
// peer's first record. Returns an error only if rec belongs to a peer not
// already being tracked and either the peer cap has been reached or
// dialing that peer's global RIB connection fails.
func (s *Supervisor) Dispatch(rec *bgprecord.Record) error {
	if rec == nil {
		return nil
	}

	s.mu.Lock()
	p, ok := s.pipes[rec.PeerID]
	if !ok {
		if len(s.pipes) >= s.cfg.MaxPeers {
			s.mu.Unlock()
			metrics.PeerLimitRejectedTotal.WithLabelValues(string(rec.Dialect)).Inc()
			return fmt.Errorf("peer: cap of %d peers reached, refusing %s", s.cfg.MaxPeers, rec.PeerID)
		}
		conn, err := s.dialConn(rec.PeerID)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("peer: dialing global rib for %s: %w", rec.PeerID, err)
		}
		p = newPipeline(rec.PeerID, s.cfg, conn, s.sink, s.burstLog, s.logger)
		s.pipes[rec.PeerID] = p
	}
	s.mu.Unlock()

	metrics.PeerMessagesTotal.WithLabelValues(rec.PeerID, string(rec.Type)).Inc()
	p.handle(rec)

	if rec.Type == bgprecord.TypeClose {
		s.mu.Lock()
		delete(s.pipes, rec.PeerID)
		s.mu.Unlock()
	}
	return nil
}

func (s *Supervisor) dialConn(peerID string) (GlobalRIBConn, error) {
	if s.dial == nil {
		return nil, nil
	}
	return s.dial(peerID)
}

// PeerCount returns how many peers are currently being tracked.
func (s *Supervisor) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pipes)
}

// Close tears down every tracked pipeline's connection.
func (s *Supervisor) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.pipes {
		p.close()
		delete(s.pipes, id)
	}
}
