package recorder

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avellar/opswire/internal/channel"
)

// Source is the slice of the channel manager the recorder needs.
type Source interface {
	Subscribe(channel.Handler) int64
	Unsubscribe(int64)
	Stats() channel.ManagerStats
}

// Recorder subscribes to the channel event stream and fans events into the
// three batch writers. The bus handler only enqueues; all database work
// happens on the writers' goroutines.
type Recorder struct {
	cfg    Config
	logger *slog.Logger
	source Source

	eventFeed   *feed[eventRecord]
	qualityFeed *feed[channel.Event]
	statusFeed  *feed[channel.Event]

	events  *EventWriter
	quality *QualityWriter
	status  *StatusWriter

	token int64
}

// New creates a recorder writing to db. fm may be nil.
func New(cfg Config, source Source, db *pgxpool.Pool, fm FlushMetrics, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	logger = logger.With("component", "recorder")

	r := &Recorder{
		cfg:         cfg,
		logger:      logger,
		source:      source,
		eventFeed:   newFeed[eventRecord](cfg.BufferSize),
		qualityFeed: newFeed[channel.Event](cfg.BufferSize),
		statusFeed:  newFeed[channel.Event](cfg.BufferSize),
	}
	r.events = NewEventWriter(cfg, r.eventFeed, db, logger)
	r.quality = NewQualityWriter(cfg, r.qualityFeed, db, logger)
	r.status = NewStatusWriter(cfg, r.statusFeed, db, logger)
	r.events.metrics = fm
	r.quality.metrics = fm
	r.status.metrics = fm
	return r
}

// Start launches the writers and subscribes to the event stream.
func (r *Recorder) Start(ctx context.Context) error {
	if err := r.events.Start(ctx); err != nil {
		return err
	}
	if err := r.quality.Start(ctx); err != nil {
		return err
	}
	if err := r.status.Start(ctx); err != nil {
		return err
	}

	r.token = r.source.Subscribe(r.handleEvent)
	r.logger.Info("recorder started")
	return nil
}

// Stop unsubscribes and flushes the writers.
func (r *Recorder) Stop(ctx context.Context) error {
	r.source.Unsubscribe(r.token)
	r.eventFeed.close()
	r.qualityFeed.close()
	r.statusFeed.close()

	r.events.Stop(ctx)
	r.quality.Stop(ctx)
	r.status.Stop(ctx)
	r.logger.Info("recorder stopped")
	return nil
}

// Stats returns a snapshot across writers and feeds.
func (r *Recorder) Stats() Stats {
	return Stats{
		Events:      r.events.Stats(),
		Quality:     r.quality.Stats(),
		Status:      r.status.Stats(),
		EventFeed:   r.eventFeed.stats(),
		QualityFeed: r.qualityFeed.stats(),
		StatusFeed:  r.statusFeed.stats(),
	}
}

// handleEvent routes one bus event. Runs on the bus dispatch goroutine and
// must stay cheap.
func (r *Recorder) handleEvent(ev channel.Event) {
	switch ev.Type {
	case channel.EventConnected, channel.EventDisconnected, channel.EventError:
		stats := r.source.Stats()
		r.eventFeed.push(eventRecord{Event: ev, State: stats.State, Attempt: stats.Attempt})
	case channel.EventQuality:
		r.qualityFeed.push(ev)
	case channel.EventStatusUpdate:
		r.statusFeed.push(ev)
	}
	// Message and ToolUpdate payloads are intentionally not persisted.
}
