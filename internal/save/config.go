package save

import "time"

// Config parameterizes a Coordinator: the per-field cell debounce and the
// retry policy for failed writes. It is passed to save.New and is separate
// from engine.Config.
type Config struct {
	// CellDebounce is the per-field debounce window before a cell write is
	// issued (spec §4.4 "debounce at 300 ms per field (configurable)").
	CellDebounce time.Duration
	// SaveRetryBackoff bounds the backoff used when a write is retried
	// after a transient store failure (spec §7 "Save failure").
	SaveRetryBackoff time.Duration
	MaxSaveRetries   int
}

// DefaultConfig matches the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		CellDebounce:     300 * time.Millisecond,
		SaveRetryBackoff: 2 * time.Second,
		MaxSaveRetries:   3,
	}
}
