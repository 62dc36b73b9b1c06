package persist

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"swift-predict/internal/burst"
	"swift-predict/internal/metrics"
	"swift-predict/internal/peer"
)

// Pipeline adapts a peer.Supervisor's closed-burst callbacks into batched
// Writer flushes, on the same channel-plus-ticker shape the teacher's
// Kafka-fed pipelines use, substituting the in-process BurstSink callback
// for Kafka record delivery.
type Pipeline struct {
	writer        *Writer
	algo          string
	batchSize     int
	flushInterval time.Duration
	logger        *zap.Logger

	rows chan *BurstRow
	done chan struct{}
}

// NewPipeline returns a Pipeline flushing to writer, tagging every row
// with algo (the BPA mode this run was configured with).
func NewPipeline(writer *Writer, algo string, batchSize, flushIntervalMs, channelBufferSize int, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		writer:        writer,
		algo:          algo,
		batchSize:     batchSize,
		flushInterval: time.Duration(flushIntervalMs) * time.Millisecond,
		logger:        logger,
		rows:          make(chan *BurstRow, channelBufferSize),
		done:          make(chan struct{}),
	}
}

// BurstClosed implements peer.BurstSink. It never blocks: a full channel
// means Run has fallen behind, and a dropped row is reported rather than
// stalling the peer pipeline that produced it.
func (p *Pipeline) BurstClosed(peerID string, b *burst.Burst, result peer.BurstResult) {
	row := &BurstRow{
		PeerID:               peerID,
		StartTime:            b.StartTime,
		EndTime:              b.LastTime,
		Ts100thW:             b.Ts100thW(),
		Algo:                 p.algo,
		RealPrefixCount:      b.RealPrefixCount(),
		PredictedPrefixCount: b.PredictedPrefixCount(),
		Edges:                b.Edges(),
	}
	if p.writer.storeRawPrefixes {
		row.RealPrefixes = []byte(strings.Join(b.RealPrefixes(), "\n"))
	}

	select {
	case p.rows <- row:
	default:
		metrics.PersistRowsDroppedTotal.WithLabelValues("channel_full").Inc()
		if p.logger != nil {
			p.logger.Warn("persist: dropping burst row, channel full", zap.String("peer_id", peerID))
		}
	}
}

// Run batches rows off the channel and flushes on whichever comes first,
// batchSize or flushInterval, until ctx is cancelled. It drains once more
// with a fresh background context before returning.
func (p *Pipeline) Run(ctx context.Context) {
	defer close(p.done)

	var batch []*BurstRow
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	flush := func(c context.Context) {
		if len(batch) == 0 {
			return
		}
		if _, err := p.writer.FlushBatch(c, batch); err != nil {
			p.logger.Error("persist: flush failed", zap.Error(err))
		}
		batch = nil
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case row := <-p.rows:
					batch = append(batch, row)
				default:
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					flush(shutdownCtx)
					cancel()
					return
				}
			}

		case row := <-p.rows:
			batch = append(batch, row)
			if len(batch) >= p.batchSize {
				flush(ctx)
			}

		case <-ticker.C:
			flush(ctx)
		}
	}
}

// Wait blocks until Run has performed its final flush and returned.
func (p *Pipeline) Wait() { <-p.done }
