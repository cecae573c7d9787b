package progress

import "time"

// Phase names a pipeline phase.
type Phase string

const (
	PhaseScanning      Phase = "scanning"
	PhaseParsing       Phase = "parsing"
	PhaseFiltering     Phase = "filtering"
	PhaseSynchronizing Phase = "synchronizing"
	PhaseCleanup       Phase = "cleanup"
)

// Sink receives progress events. Calls for one phase may arrive from several
// workers at once; implementations must be safe for concurrent use.
type Sink interface {
	// PhaseStarted announces a phase; total is zero when unknown.
	PhaseStarted(phase Phase, total int)
	ItemDone(phase Phase, index int, label string)
	StatsUpdate(stats RunStats)
	PhaseComplete(phase Phase, elapsed time.Duration)
	RunComplete(stats RunStats)
	RunFailed(err error)
}

// Nop discards every event.
type Nop struct{}

func (Nop) PhaseStarted(Phase, int)            {}
func (Nop) ItemDone(Phase, int, string)        {}
func (Nop) StatsUpdate(RunStats)               {}
func (Nop) PhaseComplete(Phase, time.Duration) {}
func (Nop) RunComplete(RunStats)               {}
func (Nop) RunFailed(error)                    {}

// Multi forwards events to every sink in order.
type Multi []Sink

// NewMulti drops nil sinks.
func NewMulti(sinks ...Sink) Multi {
	out := make(Multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m Multi) PhaseStarted(phase Phase, total int) {
	for _, s := range m {
		s.PhaseStarted(phase, total)
	}
}

func (m Multi) ItemDone(phase Phase, index int, label string) {
	for _, s := range m {
		s.ItemDone(phase, index, label)
	}
}

func (m Multi) StatsUpdate(stats RunStats) {
	for _, s := range m {
		s.StatsUpdate(stats)
	}
}

func (m Multi) PhaseComplete(phase Phase, elapsed time.Duration) {
	for _, s := range m {
		s.PhaseComplete(phase, elapsed)
	}
}

func (m Multi) RunComplete(stats RunStats) {
	for _, s := range m {
		s.RunComplete(stats)
	}
}

func (m Multi) RunFailed(err error) {
	for _, s := range m {
		s.RunFailed(err)
	}
}
