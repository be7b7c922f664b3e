package recorder

import "time"

// Config tunes the batch writers.
type Config struct {
	// BatchSize flushes a writer once its pending rows reach this count.
	BatchSize int

	// FlushInterval flushes pending rows regardless of count.
	FlushInterval time.Duration

	// BufferSize is the initial capacity of each writer's input feed.
	BufferSize int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     200,
		FlushInterval: 2 * time.Second,
		BufferSize:    1024,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.BatchSize == 0 {
		c.BatchSize = def.BatchSize
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = def.FlushInterval
	}
	if c.BufferSize == 0 {
		c.BufferSize = def.BufferSize
	}
}

// FlushMetrics receives flush outcomes. Satisfied by internal/metrics; nil
// disables reporting.
type FlushMetrics interface {
	RecordFlush(writer string, inserts int)
	RecordWriteError(writer string)
}

// WriterStats counts one writer's database activity.
type WriterStats struct {
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Errors    int64
}

// Stats is a snapshot of the whole recorder.
type Stats struct {
	Events  WriterStats
	Quality WriterStats
	Status  WriterStats

	EventFeed   FeedStats
	QualityFeed FeedStats
	StatusFeed  FeedStats
}
