package idxcheck

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Phase is a stage of a trial.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseSeeding
	PhaseMutating
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseSeeding:
		return "seeding"
	case PhaseMutating:
		return "mutating"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// EventKind classifies an [Event].
type EventKind int

const (
	EventPhase EventKind = iota
	EventInsert
	EventDelete
	EventCheck
)

// Event is reported to observers after every driver step.
type Event struct {
	Kind      EventKind
	Trial     int
	Phase     Phase
	Iteration int

	// Document is the inserted document or delete template.
	Document Document

	// Removed is the delete count for [EventDelete].
	Removed int
}

// TrialState is the bookkeeping of one trial. It is discarded when the next
// trial starts.
type TrialState struct {
	Trial    int
	Seed     uint64
	Fields   []Field
	Index    IndexSpec
	Inserted int
	Removed  int
	Checks   int
}

// Summary collects the state of every trial a run executed, including the
// failing one.
type Summary struct {
	Seed   uint64
	Trials []TrialState
}

// DriverOption configures a [Driver].
type DriverOption func(*Driver)

// WithLogger sets the logger for trial progress. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) DriverOption {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithObserver registers fn to receive every [Event].
func WithObserver(fn func(Event)) DriverOption {
	return func(d *Driver) {
		d.observe = fn
	}
}

// Driver runs trials against a collection.
//
// Not safe for concurrent use; the collection must not be shared while a
// run is in progress.
type Driver struct {
	coll     Collection
	src      *Rand
	gen      *Generator
	oracle   *Oracle
	cfg      Config
	baseSeed uint64
	logger   *zap.Logger
	observe  func(Event)
}

// NewDriver returns a driver for coll. Trial t runs with src reseeded to
// src.Seed()+t, so every trial is reproducible on its own.
func NewDriver(coll Collection, src *Rand, cfg Config, opts ...DriverOption) *Driver {
	gen := NewGenerator(src)

	d := &Driver{
		coll:     coll,
		src:      src,
		gen:      gen,
		oracle:   NewOracle(coll, gen),
		cfg:      cfg,
		baseSeed: src.Seed(),
		logger:   zap.NewNop(),
		observe:  func(Event) {},
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Run executes cfg.Trials trials and stops at the first error.
func (d *Driver) Run(ctx context.Context) (Summary, error) {
	err := d.cfg.Validate()
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Seed: d.baseSeed}

	for trial := range d.cfg.Trials {
		state, err := d.RunTrial(ctx, trial)
		summary.Trials = append(summary.Trials, state)

		if err != nil {
			return summary, err
		}
	}

	return summary, nil
}

// TrialSeed returns the seed trial runs with.
func (d *Driver) TrialSeed(trial int) uint64 {
	return d.baseSeed + uint64(trial)
}

// RunTrial runs a single trial: init, seeding, mutating, done.
func (d *Driver) RunTrial(ctx context.Context, trial int) (TrialState, error) {
	d.src.Reseed(d.TrialSeed(trial))

	state := TrialState{Trial: trial, Seed: d.src.Seed()}

	// Init: fresh collection, schema and index.
	d.phase(&state, PhaseInit)

	state.Fields = d.gen.Schema()

	err := d.coll.Reset(ctx, state.Fields)
	if err != nil {
		return state, storeErr("reset", err)
	}

	state.Index = d.gen.IndexSpec(state.Fields)

	err = d.coll.CreateIndex(ctx, state.Index)
	if err != nil {
		return state, storeErr("create index", err)
	}

	d.logger.Info("trial start",
		zap.Int("trial", trial),
		zap.Uint64("seed", state.Seed),
		zap.Int("fields", len(state.Fields)),
		zap.Stringer("index", state.Index))

	// Seeding: pure growth.
	d.phase(&state, PhaseSeeding)

	for i := range d.cfg.SeedOps {
		err = ctx.Err()
		if err != nil {
			return state, err
		}

		err = d.insert(ctx, &state, PhaseSeeding, i)
		if err != nil {
			return state, err
		}

		err = d.maybeCheck(ctx, &state, PhaseSeeding, i)
		if err != nil {
			return state, err
		}
	}

	// Mutating: growth with churn.
	d.phase(&state, PhaseMutating)

	for i := range d.cfg.MutateOps {
		err = ctx.Err()
		if err != nil {
			return state, err
		}

		if d.src.Bool(d.cfg.InsertRate) {
			err = d.insert(ctx, &state, PhaseMutating, i)
		} else {
			err = d.delete(ctx, &state, i)
		}

		if err != nil {
			return state, err
		}

		err = d.maybeCheck(ctx, &state, PhaseMutating, i)
		if err != nil {
			return state, err
		}
	}

	// Done: at least one check per trial regardless of sampling.
	d.phase(&state, PhaseDone)

	err = d.check(ctx, &state, PhaseDone, 0)
	if err != nil {
		return state, err
	}

	d.logger.Info("trial done",
		zap.Int("trial", trial),
		zap.Int("inserted", state.Inserted),
		zap.Int("removed", state.Removed),
		zap.Int("checks", state.Checks))

	return state, nil
}

func (d *Driver) phase(state *TrialState, phase Phase) {
	d.logger.Debug("phase", zap.Int("trial", state.Trial), zap.Stringer("phase", phase))
	d.observe(Event{Kind: EventPhase, Trial: state.Trial, Phase: phase})
}

func (d *Driver) insert(ctx context.Context, state *TrialState, phase Phase, iteration int) error {
	doc := d.gen.Document(state.Fields)

	err := d.coll.Insert(ctx, doc)
	if err != nil {
		return storeErr("insert", err)
	}

	state.Inserted++

	d.observe(Event{Kind: EventInsert, Trial: state.Trial, Phase: phase, Iteration: iteration, Document: doc})

	return nil
}

func (d *Driver) delete(ctx context.Context, state *TrialState, iteration int) error {
	template := d.gen.Document(state.Fields)

	removed, err := d.coll.DeleteByExample(ctx, template)
	if err != nil {
		return storeErr("delete by example", err)
	}

	state.Removed += removed

	d.observe(Event{
		Kind:      EventDelete,
		Trial:     state.Trial,
		Phase:     PhaseMutating,
		Iteration: iteration,
		Document:  template,
		Removed:   removed,
	})

	return nil
}

func (d *Driver) maybeCheck(ctx context.Context, state *TrialState, phase Phase, iteration int) error {
	if !d.src.Bool(d.cfg.CheckRate) {
		return nil
	}

	return d.check(ctx, state, phase, iteration)
}

func (d *Driver) check(ctx context.Context, state *TrialState, phase Phase, iteration int) error {
	d.logger.Info("check",
		zap.Int("trial", state.Trial),
		zap.Stringer("phase", phase),
		zap.Int("iteration", iteration))

	state.Checks++

	err := d.oracle.Check(ctx, state.Fields, state.Index)

	d.observe(Event{Kind: EventCheck, Trial: state.Trial, Phase: phase, Iteration: iteration})

	var v *Violation
	if errors.As(err, &v) {
		v.Trial = state.Trial
		v.Seed = state.Seed
		v.Phase = phase
		v.Iteration = iteration
	}

	return err
}
