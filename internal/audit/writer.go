// Package audit implements the best-effort route-change ledger: a
// Postgres-backed record of every best-path change the RIB observes,
// kept for operational history and replay. It is not part of the core's
// correctness contract — losing Postgres connectivity degrades
// observability only, never route processing.
package audit

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/route-beacon/bgp-control/internal/metrics"
)

var zstdEncoder *zstd.Encoder

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil)
	if err != nil {
		panic(fmt.Sprintf("audit: zstd encoder init: %v", err))
	}
}

// Writer batches route-change Events into route_events. One Writer exists
// per process, shared by the Pipelines Controller runs, one per subscribed
// RIB table.
type Writer struct {
	pool          *pgxpool.Pool
	logger        *zap.Logger
	compressRaw   bool
	storeRawBytes bool
}

// NewWriter constructs a Writer. storeRawBytes/compressRaw mirror the
// teacher's StoreRawBytes/StoreRawBytesCompress config knobs: the encoded
// UPDATE bytes a change produced are optional payload, not required for the
// row to carry its change-summary columns.
func NewWriter(pool *pgxpool.Pool, logger *zap.Logger, storeRawBytes, compressRaw bool) *Writer {
	return &Writer{pool: pool, logger: logger, storeRawBytes: storeRawBytes, compressRaw: compressRaw}
}

// Event is one recorded best-path change.
type Event struct {
	Table        string
	Prefix       string
	PeerRouterID uint32
	Action       string // "update" or "withdraw"
	NextHop      string
	ASPath       string
	Origin       string
	LocalPref    uint32
	MED          uint32
	RawUpdate    []byte // optional encoded UPDATE message this change produced
}

// eventID hashes the fields that make an event unique for dedup purposes:
// repeated notifications for an unchanged best path (the replicator's
// idempotence law can fan the same change out more than once) must collapse
// to the same row rather than accumulate duplicates.
func eventID(e *Event) []byte {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%s|%s|%s|%s|%d|%d", e.Table, e.Prefix, e.PeerRouterID, e.Action, e.NextHop, e.ASPath, e.Origin, e.LocalPref, e.MED)
	return h.Sum(nil)
}

const insertSQL = `
	INSERT INTO route_events (event_id, ingest_time, table_name, prefix, peer_router_id,
		action, nexthop, as_path, origin, localpref, med, raw_update)
	VALUES ($1, date_trunc('second', now() AT TIME ZONE 'UTC')::timestamptz, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (event_id, ingest_time) DO NOTHING`

// FlushBatch inserts a batch of events, returning the number of rows
// actually inserted (conflicts are silently deduplicated).
func (w *Writer) FlushBatch(ctx context.Context, events []*Event) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}
	start := time.Now()

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("audit: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, e := range events {
		var raw []byte
		if w.storeRawBytes && e.RawUpdate != nil {
			if w.compressRaw {
				raw = zstdEncoder.EncodeAll(e.RawUpdate, nil)
			} else {
				raw = e.RawUpdate
			}
		}
		batch.Queue(insertSQL,
			eventID(e), e.Table, e.Prefix, e.PeerRouterID, e.Action,
			nilIfEmpty(e.NextHop), nilIfEmpty(e.ASPath), nilIfEmpty(e.Origin),
			e.LocalPref, e.MED, raw,
		)
	}

	results := tx.SendBatch(ctx, batch)
	var inserted int64
	insertedByTable := make(map[string]int64)
	for i := range events {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, fmt.Errorf("audit: insert route_event[%d]: %w", i, err)
		}
		affected := tag.RowsAffected()
		inserted += affected
		if affected == 0 {
			metrics.AuditDedupConflictsTotal.WithLabelValues(events[i].Table).Inc()
		} else {
			insertedByTable[events[i].Table] += affected
		}
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("audit: closing batch results: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("audit: commit tx: %w", err)
	}

	dur := time.Since(start).Seconds()
	tablesSeen := make(map[string]struct{}, len(events))
	for _, e := range events {
		tablesSeen[e.Table] = struct{}{}
	}
	for table := range tablesSeen {
		metrics.AuditWriteDuration.WithLabelValues(table).Observe(dur)
	}
	for table, n := range insertedByTable {
		metrics.AuditRowsAffectedTotal.WithLabelValues(table).Add(float64(n))
	}
	metrics.AuditBatchSize.Observe(float64(len(events)))

	return inserted, nil
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
