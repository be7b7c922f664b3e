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

// statusRow is one server_status row.
type statusRow struct {
	At        int64 // unix microseconds
	ServerID  string
	Name      string
	Status    string
	ToolCount int
}

// StatusWriter persists server status snapshots. One StatusUpdate event
// fans out to one row per reported server.
type StatusWriter struct {
	cfg    Config
	logger *slog.Logger

	input *feed[channel.Event]
	db    *pgxpool.Pool

	batch       []statusRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats   WriterStats
	metrics FlushMetrics
}

// NewStatusWriter creates a status writer reading from input.
func NewStatusWriter(cfg Config, input *feed[channel.Event], db *pgxpool.Pool, logger *slog.Logger) *StatusWriter {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	return &StatusWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger.With("writer", "status"),
		batch:  make([]statusRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming events and writing batches.
func (w *StatusWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("status writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains goroutines and performs a final flush.
func (w *StatusWriter) Stop(ctx context.Context) error {
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
		w.logger.Warn("status writer stop timed out")
	}

	w.flush()
	return nil
}

// Stats returns current counters.
func (w *StatusWriter) Stats() WriterStats {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.stats
}

func (w *StatusWriter) consumeLoop() {
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

func (w *StatusWriter) flushLoop() {
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

func (w *StatusWriter) handleEvent(ev channel.Event) {
	rows := w.transform(ev)
	if len(rows) == 0 {
		return
	}

	w.batchMu.Lock()
	w.batch = append(w.batch, rows...)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

// transform converts a StatusUpdate event to one row per server.
func (w *StatusWriter) transform(ev channel.Event) []statusRow {
	rows := make([]statusRow, 0, len(ev.Servers))
	for _, srv := range ev.Servers {
		rows = append(rows, statusRow{
			At:        ev.At.UnixMicro(),
			ServerID:  srv.ID,
			Name:      srv.Name,
			Status:    srv.Status,
			ToolCount: srv.ToolCount,
		})
	}
	return rows
}

func (w *StatusWriter) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]statusRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.stats.Errors++
		w.batchMu.Unlock()
		if w.metrics != nil {
			w.metrics.RecordWriteError("status")
		}
		return
	}

	w.batchMu.Lock()
	w.stats.Inserts += int64(len(batch) - conflicts)
	w.stats.Conflicts += int64(conflicts)
	w.stats.Flushes++
	w.batchMu.Unlock()
	if w.metrics != nil {
		w.metrics.RecordFlush("status", len(batch)-conflicts)
	}

	w.logger.Debug("flushed server status",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

func (w *StatusWriter) batchInsert(rows []statusRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO server_status (at, server_id, name, status, tool_count)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (server_id, at) DO NOTHING
		`, r.At, r.ServerID, r.Name, r.Status, r.ToolCount)
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
