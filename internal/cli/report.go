package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/natefinch/atomic"

	"github.com/calvinalkan/idxcheck/pkg/idxcheck"
)

// Report statuses.
const (
	statusOK          = "ok"
	statusIntegrity   = "integrity_violation"
	statusEquivalence = "equivalence_violation"
	statusError       = "error"
)

// runReport is the JSON document written with --report.
type runReport struct {
	RunID     string          `json:"run_id"`
	Seed      uint64          `json:"seed"`
	Store     string          `json:"store"`
	Driver    string          `json:"driver,omitempty"`
	Config    idxcheck.Config `json:"config"`
	Started   time.Time       `json:"started"`
	Finished  time.Time       `json:"finished"`
	Status    string          `json:"status"`
	Error     string          `json:"error,omitempty"`
	Violation *violationJSON  `json:"violation,omitempty"`
	Trials    []trialJSON     `json:"trials"`
}

type trialJSON struct {
	Trial    int              `json:"trial"`
	Seed     uint64           `json:"seed"`
	Fields   []idxcheck.Field `json:"fields"`
	Index    string           `json:"index"`
	Inserted int              `json:"inserted"`
	Removed  int              `json:"removed"`
	Checks   int              `json:"checks"`
}

type violationJSON struct {
	Trial     int      `json:"trial"`
	Seed      uint64   `json:"seed"`
	Phase     string   `json:"phase"`
	Iteration int      `json:"iteration"`
	Index     string   `json:"index"`
	Details   string   `json:"details,omitempty"`
	Predicate string   `json:"predicate,omitempty"`
	Sort      string   `json:"sort,omitempty"`
	Indexed   []string `json:"indexed,omitempty"`
	Scanned   []string `json:"scanned,omitempty"`
	Diff      string   `json:"diff,omitempty"`
}

func newTrialJSON(s idxcheck.TrialState) trialJSON {
	return trialJSON{
		Trial:    s.Trial,
		Seed:     s.Seed,
		Fields:   s.Fields,
		Index:    s.Index.String(),
		Inserted: s.Inserted,
		Removed:  s.Removed,
		Checks:   s.Checks,
	}
}

func newViolationJSON(v *idxcheck.Violation) *violationJSON {
	out := &violationJSON{
		Trial:     v.Trial,
		Seed:      v.Seed,
		Phase:     v.Phase.String(),
		Iteration: v.Iteration,
		Index:     v.Index.String(),
		Details:   v.Details,
		Diff:      v.Diff,
	}

	if v.Predicate != nil {
		out.Predicate = v.Predicate.String()
		out.Sort = v.Sort.String()
	}

	for _, d := range v.Indexed {
		out.Indexed = append(out.Indexed, d.String())
	}

	for _, d := range v.Scanned {
		out.Scanned = append(out.Scanned, d.String())
	}

	return out
}

// setOutcome records the run error (if any) on r.
func (r *runReport) setOutcome(err error) {
	var v *idxcheck.Violation

	switch {
	case err == nil:
		r.Status = statusOK
	case errors.As(err, &v):
		r.Status = statusEquivalence
		if errors.Is(err, idxcheck.ErrIntegrity) {
			r.Status = statusIntegrity
		}

		r.Violation = newViolationJSON(v)
		r.Error = err.Error()
	default:
		r.Status = statusError
		r.Error = err.Error()
	}
}

// writeReport atomically replaces path with r as indented JSON.
func writeReport(path string, r runReport) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	data = append(data, '\n')

	err = atomic.WriteFile(path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	return nil
}
