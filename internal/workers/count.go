package workers

import (
	"log/slog"
	"runtime"

	"strmsync/internal/logging"
)

const (
	solidStateFactor = 4
	solidStateCap    = 32
	rotationalFactor = 2
	rotationalCap    = 16
	explicitCap      = 64
)

// Count returns the pool size for the given CPU count and storage class.
// Solid-state storage tolerates more concurrent I/O than spinning disks; both
// are capped, and the result is never below one.
func Count(cpu int, rotational bool) int {
	if cpu < 1 {
		cpu = 1
	}
	n := min(cpu*solidStateFactor, solidStateCap)
	if rotational {
		n = min(cpu*rotationalFactor, rotationalCap)
	}
	return max(n, 1)
}

// Resolution describes how the worker count was chosen.
type Resolution struct {
	Workers    int
	Auto       bool
	Rotational bool
}

// Resolve converts a configured setting (0 means auto) into a concrete worker
// count. Automatic sizing probes the storage holding probePath; probe
// failures fall back to the solid-state profile.
func Resolve(setting int, probePath string, logger *slog.Logger) Resolution {
	if setting > 0 {
		return Resolution{Workers: min(setting, explicitCap)}
	}
	rotational, err := IsRotational(probePath)
	if err != nil && logger != nil {
		logger.Debug("storage probe failed; assuming solid-state",
			logging.String("path", probePath),
			logging.Error(err))
	}
	return Resolution{
		Workers:    Count(runtime.NumCPU(), rotational),
		Auto:       true,
		Rotational: rotational,
	}
}
