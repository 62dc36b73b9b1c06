package peer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"swift-predict/internal/astopo"
	"swift-predict/internal/bgprecord"
	"swift-predict/internal/bpa"
	"swift-predict/internal/burst"
	"swift-predict/internal/encoding"
	"swift-predict/internal/metrics"
	"swift-predict/internal/rib"
	"swift-predict/internal/window"
)

// pipeline is one peer's private state: its adjacency RIB, the two
// AS-topology graphs (g tracks every currently-announced path, gw tracks
// only what's in the live withdrawal window), the burst lifecycle
// controller, and the bitfield encoding engine initialized lazily once
// the RIB reaches the configured backfill threshold or the peer's
// first withdrawal arrives, whichever comes first.
type pipeline struct {
	peerID   string
	cfg      Config
	conn     GlobalRIBConn
	sink     BurstSink
	burstLog BurstLogger
	logger   *zap.Logger

	rib *rib.PeerRIB
	g   *astopo.Graph
	gw  *astopo.Graph
	enc *encoding.Encoding

	wQueue *window.Queue[burst.WRecord]
	uQueue *window.Queue[burst.WRecord]

	ctrl  *burst.Controller
	vctrl *burst.ValidationController

	bound  bool
	peerAS int64
}

func newPipeline(peerID string, cfg Config, conn GlobalRIBConn, sink BurstSink, burstLog BurstLogger, logger *zap.Logger) *pipeline {
	return &pipeline{
		peerID:   peerID,
		cfg:      cfg,
		conn:     conn,
		sink:     sink,
		burstLog: burstLog,
		logger:   logger,
		rib:      rib.New(),
		g:        astopo.New(1, cfg.Silent),
		gw:       astopo.New(cfg.StartThreshold, cfg.Silent),
		wQueue:   window.New[burst.WRecord](cfg.WinSize),
		uQueue:   window.New[burst.WRecord](cfg.WinSize),
	}
}

// bind fixes this pipeline's peer AS number from its first record,
// correcting it from the record's AS path head if the collector didn't
// supply one directly, and constructs the burst controller now that the
// naive-BPA candidate AS set is known.
func (p *pipeline) bind(rec *bgprecord.Record) {
	if p.bound {
		return
	}

	peerAS := rec.PeerAS
	if peerAS == 0 && len(rec.ASPath) > 0 {
		peerAS = rec.ASPath[0]
		if p.logger != nil {
			p.logger.Warn("peer AS missing from record, inferred from AS path head",
				zap.String("peer_id", p.peerID), zap.Int64("peer_as", peerAS))
		}
	}
	p.peerAS = peerAS

	p.ctrl = burst.NewController(p.peerID, burst.Config{
		StartThreshold:  p.cfg.StartThreshold,
		EndThreshold:    p.cfg.EndThreshold,
		MinBpaBurstSize: p.cfg.MinBpaBurstSize,
		BpaFreq:         p.cfg.BpaFreq,
		PW:              p.cfg.PW,
		RW:              p.cfg.RW,
		Algo:            p.cfg.Algo,
		PeerASSet:       []int64{peerAS},
	})
	if p.cfg.ValidationEnabled {
		p.vctrl = burst.NewValidationController(p.peerID, p.cfg.StartThreshold, p.cfg.EndThreshold)
	}
	p.bound = true
}

func (p *pipeline) handle(rec *bgprecord.Record) {
	p.bind(rec)

	switch rec.Type {
	case bgprecord.TypeAdvertisement:
		p.handleAdvertisement(rec)
	case bgprecord.TypeWithdrawal:
		p.handleWithdrawal(rec)
	case bgprecord.TypeClose:
		p.handleClose(rec)
		return
	default:
		return
	}

	if p.ctrl.Active() && rec.Type == bgprecord.TypeAdvertisement {
		p.ctrl.Current().AddRealPrefix(rec.Prefix)
	}
	p.advance(rec.Time)
}

func (p *pipeline) handleAdvertisement(rec *bgprecord.Record) {
	if len(rec.ASPath) > 0 {
		p.ctrl.AddPeerAS(rec.ASPath[0])
	}

	old := p.rib.Update(rec.Prefix, rec.ASPath)
	p.g.Remove(old, rec.Prefix)
	p.g.Add(rec.ASPath, rec.Prefix)

	switch {
	case p.enc != nil:
		p.enc.Advertisement(old, rec.ASPath)
		p.sendAdvertisement(rec.Prefix, rec.ASPath, rec.Time)
		p.reportEncodingOccupancy()
	case p.rib.Len() >= p.cfg.RunEncodingThreshold:
		p.initEncoding(rec.Time)
	}

	if p.cfg.ValidationEnabled {
		p.vctrl.Record(burst.WRecord{Prefix: rec.Prefix, ASPath: rec.ASPath, Time: rec.Time}, p.uQueue)
	}
}

func (p *pipeline) handleWithdrawal(rec *bgprecord.Record) {
	if p.enc == nil {
		p.initEncoding(rec.Time)
	}

	old := p.rib.Withdraw(rec.Prefix)
	if len(old) > 0 {
		p.g.Remove(old, rec.Prefix)
		p.gw.Add(old, rec.Prefix)
		p.ctrl.RecordWithdrawal(burst.WRecord{Prefix: rec.Prefix, ASPath: old, Time: rec.Time}, p.wQueue)
	}
	if p.enc != nil {
		p.enc.Withdraw(old)
		p.reportEncodingOccupancy()
	}
	p.sendWithdrawal(rec.Prefix, rec.Time)

	if p.cfg.ValidationEnabled {
		p.vctrl.Record(burst.WRecord{Prefix: rec.Prefix, ASPath: old, Time: rec.Time}, p.uQueue)
	}
}

func (p *pipeline) handleClose(rec *bgprecord.Record) {
	if p.ctrl != nil && p.ctrl.Active() {
		b := p.ctrl.Current()
		before := edgeSet(b.Edges())

		start := time.Now()
		result := p.ctrl.ForceBPA(rec.Time, p.g, p.gw, b)
		metrics.BPADuration.WithLabelValues(string(p.cfg.Algo)).Observe(time.Since(start).Seconds())
		metrics.BPAInvocationsTotal.WithLabelValues(p.peerID, string(p.cfg.Algo)).Inc()
		metrics.BPAScore.WithLabelValues(p.peerID, string(p.cfg.Algo)).Observe(result.Score)

		p.emitNewEdges(b, before, result, rec.Time)
		b.Touch(rec.Time)
		b.Stop()
		p.finishBurst(b)
	}

	p.rib.Range(func(prefix string, _ []int64) bool {
		p.sendWithdrawal(prefix, -1)
		return true
	})
	p.close()
}

// advance steps the burst controller (and, if enabled, the ground-truth
// validation controller) forward to rec's timestamp, reacting to any
// burst that opened or closed along the way and to a periodic BPA run
// becoming due.
func (p *pipeline) advance(ts float64) {
	closed, opened := p.ctrl.Advance(ts, p.wQueue, p.gw)
	if opened {
		metrics.BurstOpenedTotal.WithLabelValues(p.peerID).Inc()
	}
	if closed != nil {
		before := edgeSet(closed.Edges())

		start := time.Now()
		result := p.ctrl.ForceBPA(ts, p.g, p.gw, closed)
		metrics.BPADuration.WithLabelValues(string(p.cfg.Algo)).Observe(time.Since(start).Seconds())
		metrics.BPAInvocationsTotal.WithLabelValues(p.peerID, string(p.cfg.Algo)).Inc()
		metrics.BPAScore.WithLabelValues(p.peerID, string(p.cfg.Algo)).Observe(result.Score)

		p.emitNewEdges(closed, before, result, ts)
		p.finishBurst(closed)
	}

	if p.cfg.ValidationEnabled && p.vctrl != nil {
		p.vctrl.Advance(ts, p.uQueue)
	}

	var beforePeriodic map[bpa.Link]bool
	if p.ctrl.Active() {
		beforePeriodic = edgeSet(p.ctrl.Current().Edges())
	}

	start := time.Now()
	result, ran := p.ctrl.MaybeRunBPA(ts, p.g, p.gw)
	if !ran {
		return
	}
	metrics.BPADuration.WithLabelValues(string(p.cfg.Algo)).Observe(time.Since(start).Seconds())
	metrics.BPAInvocationsTotal.WithLabelValues(p.peerID, string(p.cfg.Algo)).Inc()
	metrics.BPAScore.WithLabelValues(p.peerID, string(p.cfg.Algo)).Observe(result.Score)

	if b := p.ctrl.Current(); b != nil {
		p.emitNewEdges(b, beforePeriodic, result, ts)
	}
}

func (p *pipeline) finishBurst(b *burst.Burst) {
	metrics.BurstClosedTotal.WithLabelValues(p.peerID).Inc()
	metrics.BurstDurationSeconds.WithLabelValues(p.peerID).Observe(b.Duration())
	if p.burstLog != nil {
		p.burstLog.LogClosed(b)
	}
	if p.sink != nil {
		p.sink.BurstClosed(p.peerID, b, BurstResult{
			Edges:      len(b.Edges()),
			RealPrefix: b.RealPrefixCount(),
			PredPrefix: b.PredictedPrefixCount(),
			Duration:   b.Duration(),
		})
	}
}

// emitNewEdges attributes every edge in result.Edges not already in
// before to the burst's predicted-prefix set, and dispatches a
// fast-reroute instruction for each one the encoding can actually carry.
func (p *pipeline) emitNewEdges(b *burst.Burst, before map[bpa.Link]bool, result bpa.Result, ts float64) {
	for _, e := range result.Edges {
		if before[e] {
			continue
		}
		p.dispatchEdge(b, e, ts)
	}
}

func (p *pipeline) dispatchEdge(b *burst.Burst, edge bpa.Link, ts float64) {
	if p.enc == nil {
		p.rib.Range(func(prefix string, asPath []int64) bool {
			if pathHasEdge(asPath, edge) {
				b.AddPredictedPrefix(prefix, false, -1)
			}
			return true
		})
		b.AddPredictedPrefix2(b.DeletedFromWQueue, edge, false, -1)
		return
	}

	for depth := 1; depth <= p.enc.MaxDepth(); depth++ {
		if !p.gw.HasDepth(edge.From, edge.To, depth) && !p.g.HasDepth(edge.From, edge.To, depth) {
			continue
		}

		encoded := p.enc.IsEncoded(depth, edge.From, edge.To)

		p.rib.Range(func(prefix string, asPath []int64) bool {
			if pathHasEdge(asPath, edge) {
				b.AddPredictedPrefix(prefix, encoded, depth)
			}
			return true
		})
		b.AddPredictedPrefix2(b.DeletedFromWQueue, edge, encoded, depth)

		if encoded && p.cfg.GlobalRIBEnabled && p.conn != nil {
			vmacPartial, bitmaskPartial := buildFRPartial(p.enc, edge, depth)
			line := fmt.Sprintf("FR|%s|%s|%s|%d|%g\n", p.peerID, vmacPartial, bitmaskPartial, depth, ts)
			p.conn.Write([]byte(line))
			metrics.FRRulesInstalledTotal.WithLabelValues(p.peerID).Inc()
		}
	}
}

// initEncoding builds the bitfield encoding engine from the topology
// accumulated so far and, if the global RIB is wired in, backfills it
// with every prefix already held by replaying synthetic advertisements
// now that each one carries an encoded VMAC partial.
func (p *pipeline) initEncoding(ts float64) {
	p.enc = encoding.New(p.peerID, p.g, p.cfg.NbBitsASPath, p.cfg.MinPercentile)
	p.enc.ComputeEncoding()
	p.reportEncodingOccupancy()

	if !p.cfg.GlobalRIBEnabled || p.conn == nil {
		return
	}
	p.rib.Range(func(prefix string, asPath []int64) bool {
		p.sendAdvertisement(prefix, asPath, ts)
		return true
	})
}

func (p *pipeline) reportEncodingOccupancy() {
	if p.enc == nil {
		return
	}
	for d := 1; d <= p.enc.MaxDepth()+1; d++ {
		m := p.enc.Mapping(d)
		if m == nil {
			continue
		}
		capacity := float64(int(1)<<uint(m.NbBytes())) - 1
		if capacity <= 0 {
			continue
		}
		metrics.EncodingOccupancy.WithLabelValues(p.peerID, strconv.Itoa(d)).Set(float64(m.Len()) / capacity)
	}
}

func (p *pipeline) sendAdvertisement(prefix string, asPath []int64, ts float64) {
	if !p.cfg.GlobalRIBEnabled || p.conn == nil {
		return
	}
	vmac := buildVMAC(p.enc, asPath)
	line := fmt.Sprintf("%s|%s|%g|%s|%s\n", p.peerID, prefix, ts, joinASPath(asPath), vmac)
	p.conn.Write([]byte(line))
}

func (p *pipeline) sendWithdrawal(prefix string, ts float64) {
	if !p.cfg.GlobalRIBEnabled || p.conn == nil {
		return
	}
	line := fmt.Sprintf("%s|%s|%g\n", p.peerID, prefix, ts)
	p.conn.Write([]byte(line))
}

func (p *pipeline) close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

func joinASPath(asPath []int64) string {
	parts := make([]string, len(asPath))
	for i, asn := range asPath {
		parts[i] = strconv.FormatInt(asn, 10)
	}
	return strings.Join(parts, " ")
}

func pathHasEdge(path []int64, e bpa.Link) bool {
	for i := 0; i+1 < len(path); i++ {
		if path[i] == e.From && path[i+1] == e.To {
			return true
		}
	}
	return false
}

func edgeSet(edges []bpa.Link) map[bpa.Link]bool {
	out := make(map[bpa.Link]bool, len(edges))
	for _, e := range edges {
		out[e] = true
	}
	return out
}
