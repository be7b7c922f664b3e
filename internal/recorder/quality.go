package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avellar/opswire/internal/channel"
)

// qualityRow is one quality_samples row.
type qualityRow struct {
	SessionID       string
	At              int64 // unix microseconds
	LatencyMs       float64
	PacketLossPct   float64
	Stability       int
	ConnectionAgeMs int64
}

// QualityWriter persists one row per ConnectionQuality event.
type QualityWriter struct {
	cfg    Config
	logger *slog.Logger

	input *feed[channel.Event]
	db    *pgxpool.Pool

	batch       []qualityRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats   WriterStats
	metrics FlushMetrics
}

// NewQualityWriter creates a quality writer reading from input.
func NewQualityWriter(cfg Config, input *feed[channel.Event], db *pgxpool.Pool, logger *slog.Logger) *QualityWriter {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	return &QualityWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger.With("writer", "quality"),
		batch:  make([]qualityRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming events and writing batches.
func (w *QualityWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("quality writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains goroutines and performs a final flush.
func (w *QualityWriter) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("quality writer stop timed out")
	}

	w.flush()
	return nil
}

// Stats returns current counters.
func (w *QualityWriter) Stats() WriterStats {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.stats
}

func (w *QualityWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			ev, ok := w.input.tryPop()
			if !ok {
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}
			w.handleEvent(ev)
		}
	}
}

func (w *QualityWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

func (w *QualityWriter) handleEvent(ev channel.Event) {
	row := w.transform(ev)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

// transform converts a quality event to a qualityRow.
func (w *QualityWriter) transform(ev channel.Event) qualityRow {
	return qualityRow{
		SessionID:       ev.SessionID,
		At:              ev.At.UnixMicro(),
		LatencyMs:       ev.Quality.LatencyMs,
		PacketLossPct:   ev.Quality.PacketLossPercent,
		Stability:       ev.Quality.StabilityScore,
		ConnectionAgeMs: ev.Quality.ConnectionAgeMs,
	}
}

func (w *QualityWriter) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]qualityRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.stats.Errors++
		w.batchMu.Unlock()
		if w.metrics != nil {
			w.metrics.RecordWriteError("quality")
		}
		return
	}

	w.batchMu.Lock()
	w.stats.Inserts += int64(len(batch) - conflicts)
	w.stats.Conflicts += int64(conflicts)
	w.stats.Flushes++
	w.batchMu.Unlock()
	if w.metrics != nil {
		w.metrics.RecordFlush("quality", len(batch)-conflicts)
	}

	w.logger.Debug("flushed quality samples",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

func (w *QualityWriter) batchInsert(rows []qualityRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO quality_samples (session_id, at, latency_ms, packet_loss_pct, stability, connection_age_ms)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (session_id, at) DO NOTHING
		`, r.SessionID, r.At, r.LatencyMs, r.PacketLossPct, r.Stability, r.ConnectionAgeMs)
	}

	results := w.db.SendBatch(w.ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}
	return conflicts, nil
}
