package pools

import (
	"runtime/debug"
)

// GCConfig holds GC tuning parameters for the engine process.
type GCConfig struct {
	// GOGC sets the garbage collection target percentage.
	// Default is 100. Lower values = more frequent GC but less memory.
	GOGC int

	// MemoryLimit sets a soft memory limit in bytes. 0 = no limit.
	MemoryLimit int64
}

// DefaultGCConfig returns GC settings tuned for a mmap-heavy server:
// the live heap stays small while file pages dominate, so a wider GC
// target avoids collecting far more often than the heap warrants.
func DefaultGCConfig() GCConfig {
	return GCConfig{
		GOGC:        200,
		MemoryLimit: 0,
	}
}

// ApplyGCConfig applies GC tuning to reduce GC pressure.
func ApplyGCConfig(cfg GCConfig) {
	if cfg.GOGC > 0 {
		debug.SetGCPercent(cfg.GOGC)
	}
	if cfg.MemoryLimit > 0 {
		debug.SetMemoryLimit(cfg.MemoryLimit)
	}
}
