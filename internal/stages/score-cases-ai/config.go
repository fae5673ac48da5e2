// internal/stages/score-cases-ai/config.go
package scorecasesai

import "time"

// Config controls batching, retries, and concurrency for AI scoring.
type Config struct {
	// BatchSize is the number of cases per scoring request. Small batches
	// keep the model's responses parseable and complete.
	BatchSize int

	// MaxRetries is the per-batch retry budget before falling back.
	MaxRetries int

	// ParallelThreshold is the batch count above which batches are scored
	// concurrently.
	ParallelThreshold int

	// PoolSize bounds the concurrent batch workers.
	PoolSize int

	// Deadline bounds total scoring wall-clock time for one request.
	// Batches unfinished at the deadline fall back to deterministic
	// scoring.
	Deadline time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		BatchSize:         5,
		MaxRetries:        3,
		ParallelThreshold: 3,
		PoolSize:          4,
		Deadline:          45 * time.Second,
	}
}
