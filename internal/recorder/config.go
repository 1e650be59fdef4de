package recorder

import (
	"fmt"
	"time"
)

const (
	defaultQueueSize  = 4096
	defaultBatchSize  = 256
	defaultFlushEvery = time.Second
	defaultSaveWait   = 10 * time.Second
)

// Config controls recorder behavior.
type Config struct {
	// QueueSize is the number of events buffered before TryAppend fails.
	QueueSize int
	// BatchSize is the number of records saved per call to the store.
	BatchSize int
	// FlushInterval saves a partial batch after this much idle time.
	FlushInterval time.Duration
	// SaveTimeout bounds every call to the store.
	SaveTimeout time.Duration
}

// DefaultConfig returns a baseline configuration for the recorder.
func DefaultConfig() Config {
	return Config{
		QueueSize:     defaultQueueSize,
		BatchSize:     defaultBatchSize,
		FlushInterval: defaultFlushEvery,
		SaveTimeout:   defaultSaveWait,
	}
}

func (c Config) withDefaults() Config {
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.BatchSize == 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = defaultFlushEvery
	}
	if c.SaveTimeout == 0 {
		c.SaveTimeout = defaultSaveWait
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.QueueSize <= 0 {
		return fmt.Errorf("invalid recorder config: QueueSize must be > 0")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("invalid recorder config: BatchSize must be > 0")
	}
	if c.FlushInterval < 0 {
		return fmt.Errorf("invalid recorder config: FlushInterval must be >= 0")
	}
	if c.SaveTimeout < 0 {
		return fmt.Errorf("invalid recorder config: SaveTimeout must be >= 0")
	}
	return nil
}
