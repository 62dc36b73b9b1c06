// Package persist batches closed bursts and their predicted edges into
// Postgres for offline grading and historical query.
package persist

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"swift-predict/internal/bpa"
	"swift-predict/internal/metrics"
)

var zstdEncoder *zstd.Encoder

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil)
	if err != nil {
		panic(fmt.Sprintf("persist: zstd encoder init: %v", err))
	}
}

// BurstRow is one closed burst ready to be written to burst_events, along
// with the predicted edges bound for burst_edges.
type BurstRow struct {
	PeerID                string
	StartTime             float64
	EndTime               float64
	Ts100thW              float64
	Algo                  string
	RealPrefixCount       int
	PredictedPrefixCount  int
	Edges                 []bpa.Link
	RealPrefixes          []byte // optional raw prefix list, newline-joined
}

// Writer batches BurstRows into Postgres, deduplicating on a content hash
// so a replayed feed or a retried flush never double-counts a burst.
type Writer struct {
	pool             *pgxpool.Pool
	logger           *zap.Logger
	storeRawPrefixes bool
	compressRaw      bool
}

// NewWriter returns a Writer over pool. storeRawPrefixes controls whether
// BurstRow.RealPrefixes is persisted at all; compressRaw additionally
// zstd-compresses it when it is.
func NewWriter(pool *pgxpool.Pool, logger *zap.Logger, storeRawPrefixes, compressRaw bool) *Writer {
	return &Writer{pool: pool, logger: logger, storeRawPrefixes: storeRawPrefixes, compressRaw: compressRaw}
}

// eventID derives a stable dedup key from the fields that identify one
// burst uniquely: which peer, and when it started.
func eventID(peerID string, startTime float64) []byte {
	h := sha256.New()
	h.Write([]byte(peerID))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(startTime))
	h.Write(buf[:])
	return h.Sum(nil)
}

// FlushBatch inserts rows into burst_events and their edges into
// burst_edges within one transaction, returning the number of
// burst_events rows actually inserted (after dedup).
func (w *Writer) FlushBatch(ctx context.Context, rows []*BurstRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	start := time.Now()

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("persist: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertEvent = `
		INSERT INTO burst_events (event_id, ingest_time, peer_id, start_time, end_time,
			ts_100th_w, algo, real_prefix_count, predicted_prefix_count, edge_count, real_prefixes)
		VALUES ($1, date_trunc('day', now() AT TIME ZONE 'UTC')::timestamptz, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (event_id, ingest_time) DO NOTHING`

	batch := &pgx.Batch{}
	ids := make([][]byte, len(rows))
	for i, row := range rows {
		ids[i] = eventID(row.PeerID, row.StartTime)

		var rawPrefixes []byte
		if w.storeRawPrefixes && len(row.RealPrefixes) > 0 {
			if w.compressRaw {
				rawPrefixes = zstdEncoder.EncodeAll(row.RealPrefixes, nil)
			} else {
				rawPrefixes = row.RealPrefixes
			}
		}

		batch.Queue(insertEvent,
			ids[i], row.PeerID, toTimestamp(row.StartTime), toTimestamp(row.EndTime),
			toTimestamp(row.Ts100thW), row.Algo, row.RealPrefixCount, row.PredictedPrefixCount,
			len(row.Edges), rawPrefixes,
		)
	}

	results := tx.SendBatch(ctx, batch)
	var totalInserted int64
	for i, row := range rows {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, fmt.Errorf("persist: insert burst_events[%d]: %w", i, err)
		}
		affected := tag.RowsAffected()
		totalInserted += affected
		if affected > 0 {
			if err := w.insertEdges(ctx, tx, ids[i], row.PeerID, row.Edges); err != nil {
				results.Close()
				return 0, err
			}
		}
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("persist: closing batch results: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("persist: commit tx: %w", err)
	}

	dur := time.Since(start).Seconds()
	metrics.DBWriteDuration.WithLabelValues("insert").Observe(dur)
	metrics.DBRowsAffectedTotal.WithLabelValues("burst_events", "insert").Add(float64(totalInserted))
	metrics.BatchSize.WithLabelValues("burst_events").Observe(float64(len(rows)))

	return totalInserted, nil
}

func (w *Writer) insertEdges(ctx context.Context, tx pgx.Tx, eventID []byte, peerID string, edges []bpa.Link) error {
	if len(edges) == 0 {
		return nil
	}
	const insertEdge = `
		INSERT INTO burst_edges (event_id, peer_id, from_as, to_as)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id, from_as, to_as) DO NOTHING`

	batch := &pgx.Batch{}
	for _, e := range edges {
		batch.Queue(insertEdge, eventID, peerID, e.From, e.To)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()
	for i := range edges {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("persist: insert burst_edges[%d]: %w", i, err)
		}
	}
	return nil
}

// UpsertPeerStatus records the last time a peer was seen, for operational
// visibility.
func (w *Writer) UpsertPeerStatus(ctx context.Context, peerID string, lastTs float64) error {
	_, err := w.pool.Exec(ctx, `
		INSERT INTO peer_status (peer_id, last_message_time, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (peer_id)
		DO UPDATE SET last_message_time = $2, updated_at = now()`,
		peerID, toTimestamp(lastTs),
	)
	return err
}

// toTimestamp converts a BGP-collector Unix timestamp (float seconds,
// -1 meaning "session teardown") to a SQL-friendly time.Time.
func toTimestamp(ts float64) time.Time {
	if ts < 0 {
		return time.Time{}
	}
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
