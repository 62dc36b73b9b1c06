// Package dispatch is the ingress boundary: it reads raw lines from one or
// more FeedSources, parses each into a bgprecord.Record, and routes it to
// the peer supervisor that owns that peer's state.
package dispatch

import (
	"context"

	"go.uber.org/zap"

	"swift-predict/internal/bgprecord"
	"swift-predict/internal/metrics"
	"swift-predict/internal/peer"
)

// FeedSource delivers raw ingress lines to handle until ctx is cancelled
// or the source is exhausted.
type FeedSource interface {
	Run(ctx context.Context, handle func(line string)) error
}

// Dispatcher parses ingress lines and hands the resulting records to a
// peer.Supervisor, counting parse failures and peer-cap rejections.
type Dispatcher struct {
	sup    *peer.Supervisor
	logger *zap.Logger
}

// NewDispatcher returns a Dispatcher delivering every parsed record to sup.
func NewDispatcher(sup *peer.Supervisor, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{sup: sup, logger: logger}
}

// Run pumps src until ctx is cancelled or src.Run returns.
func (d *Dispatcher) Run(ctx context.Context, src FeedSource) error {
	return src.Run(ctx, d.HandleLine)
}

// HandleLine parses one ingress line and dispatches it, logging (and
// counting) anything that fails to parse or gets refused by the peer cap.
func (d *Dispatcher) HandleLine(line string) {
	rec, err := bgprecord.Parse(line)
	if err != nil {
		metrics.ParseErrorsTotal.WithLabelValues("ingest", classifyParseError(err)).Inc()
		if d.logger != nil {
			d.logger.Warn("dispatch: dropping unparsable line", zap.String("line", line), zap.Error(err))
		}
		return
	}
	if rec == nil {
		return
	}

	if err := d.sup.Dispatch(rec); err != nil {
		if d.logger != nil {
			d.logger.Warn("dispatch: rejected record", zap.String("peer_id", rec.PeerID), zap.Error(err))
		}
	}
}

func classifyParseError(err error) string {
	if err == bgprecord.ErrUnrecognized {
		return "unrecognized_dialect"
	}
	return "malformed_field"
}
