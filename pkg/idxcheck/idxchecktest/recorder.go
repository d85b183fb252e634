package idxchecktest

import "github.com/calvinalkan/idxcheck/pkg/idxcheck"

// Recorder collects driver events. Pass Recorder.Observe to
// [idxcheck.WithObserver].
type Recorder struct {
	Events []idxcheck.Event
}

// Observe appends e.
func (r *Recorder) Observe(e idxcheck.Event) {
	r.Events = append(r.Events, e)
}

// Count returns the number of events of kind.
func (r *Recorder) Count(kind idxcheck.EventKind) int {
	n := 0

	for _, e := range r.Events {
		if e.Kind == kind {
			n++
		}
	}

	return n
}

// ChecksPerTrial returns the number of checks observed in each trial.
func (r *Recorder) ChecksPerTrial() map[int]int {
	out := make(map[int]int)

	for _, e := range r.Events {
		if e.Kind == idxcheck.EventCheck {
			out[e.Trial]++
		}
	}

	return out
}

// Phases returns the phase sequence observed for trial.
func (r *Recorder) Phases(trial int) []idxcheck.Phase {
	var out []idxcheck.Phase

	for _, e := range r.Events {
		if e.Kind == idxcheck.EventPhase && e.Trial == trial {
			out = append(out, e.Phase)
		}
	}

	return out
}
