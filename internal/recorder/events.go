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

// eventRecord pairs a lifecycle event with the manager state captured at
// dispatch time, so the row reflects the attempt count the event belonged to.
type eventRecord struct {
	Event   channel.Event
	State   channel.State
	Attempt int
}

// eventRow is one channel_events row.
type eventRow struct {
	SessionID string
	At        int64 // unix microseconds
	EventType string
	State     string
	Code      int
	Reason    string
	Attempt   int
	Detail    string
}

// EventWriter persists channel lifecycle events (connected, disconnected,
// error) in batches.
type EventWriter struct {
	cfg    Config
	logger *slog.Logger

	input *feed[eventRecord]
	db    *pgxpool.Pool

	batch       []eventRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats   WriterStats
	metrics FlushMetrics
}

// NewEventWriter creates an event writer reading from input.
func NewEventWriter(cfg Config, input *feed[eventRecord], db *pgxpool.Pool, logger *slog.Logger) *EventWriter {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	return &EventWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger.With("writer", "events"),
		batch:  make([]eventRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming records and writing batches.
func (w *EventWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("event writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains goroutines and performs a final flush.
func (w *EventWriter) Stop(ctx context.Context) error {
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
		w.logger.Warn("event writer stop timed out")
	}

	w.flush()
	return nil
}

// Stats returns current counters.
func (w *EventWriter) Stats() WriterStats {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.stats
}

func (w *EventWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			rec, ok := w.input.tryPop()
			if !ok {
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}
			w.handleRecord(rec)
		}
	}
}

func (w *EventWriter) flushLoop() {
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

func (w *EventWriter) handleRecord(rec eventRecord) {
	row := w.transform(rec)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

// transform converts an eventRecord to an eventRow.
func (w *EventWriter) transform(rec eventRecord) eventRow {
	row := eventRow{
		SessionID: rec.Event.SessionID,
		At:        rec.Event.At.UnixMicro(),
		EventType: rec.Event.Type.String(),
		State:     rec.State.String(),
		Attempt:   rec.Attempt,
	}
	switch rec.Event.Type {
	case channel.EventDisconnected:
		row.Code = rec.Event.Code
		row.Reason = rec.Event.Reason
	case channel.EventError:
		if rec.Event.Err != nil {
			row.Detail = rec.Event.Err.Error()
		}
	}
	return row
}

func (w *EventWriter) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]eventRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.stats.Errors++
		w.batchMu.Unlock()
		if w.metrics != nil {
			w.metrics.RecordWriteError("events")
		}
		return
	}

	w.batchMu.Lock()
	w.stats.Inserts += int64(len(batch) - conflicts)
	w.stats.Conflicts += int64(conflicts)
	w.stats.Flushes++
	w.batchMu.Unlock()
	if w.metrics != nil {
		w.metrics.RecordFlush("events", len(batch)-conflicts)
	}

	w.logger.Debug("flushed channel events",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

func (w *EventWriter) batchInsert(rows []eventRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO channel_events (session_id, at, event_type, state, code, reason, attempt, detail)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT DO NOTHING
		`, r.SessionID, r.At, r.EventType, r.State, r.Code, r.Reason, r.Attempt, r.Detail)
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
