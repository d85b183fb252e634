package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/calvinalkan/idxcheck/pkg/idxcheck"
)

var errUnexpectedArgs = errors.New("unexpected arguments")

// RunCmd returns the run command. Flag defaults come from cfg, so the help
// output shows the effective configuration.
func RunCmd(cfg *Config) *Command {
	flags := flag.NewFlagSet("run", flag.ContinueOnError)
	seed := flags.Uint64("seed", 0, "Base random `seed`; trial t uses seed+t (default: time-based)")
	trials := flags.Int("trials", cfg.Trials, "Number of trials")
	store := flags.String("store", cfg.Store, "Store under test: sqlite, badger or model")
	driver := flags.String("driver", cfg.Driver, "SQLite driver: sqlite3 (cgo) or sqlite (pure Go)")
	db := flags.String("db", cfg.DB, "Database `path` (default: in memory)")
	seedOps := flags.Int("seed-ops", cfg.SeedOps, "Inserts in the seeding phase")
	mutateOps := flags.Int("mutate-ops", cfg.MutateOps, "Insert/delete iterations in the mutating phase")
	checkRate := flags.Float64("check-rate", cfg.CheckRate, "Probability of a check after each operation")
	insertRate := flags.Float64("insert-rate", cfg.InsertRate, "Probability that a mutating iteration inserts")
	report := flags.String("report", cfg.Report, "Write a JSON run report to `file`")
	verbose := flags.CountP("verbose", "v", "Log trial progress to stderr (-vv for debug output)")

	return &Command{
		Flags: flags,
		Usage: "run [flags]",
		Short: "Run randomized index/scan equivalence trials (default)",
		Long: `Run randomized index/scan equivalence trials.

Every trial resets the store, picks 1-5 fields and a compound index with
random directions, inserts --seed-ops documents, then runs --mutate-ops
mixed inserts and deletes by example. After each operation, with
probability --check-rate, and once at the end of every trial, a random
predicate and sort order run through the index and through a full scan.
The two result sequences must be identical.

Exits 1 on the first violation or store error and prints the seed needed
to reproduce it.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("%w: %s", errUnexpectedArgs, strings.Join(args, " "))
			}

			run := *cfg
			run.Trials = *trials
			run.Store = *store
			run.Driver = *driver
			run.DB = *db
			run.SeedOps = *seedOps
			run.MutateOps = *mutateOps
			run.CheckRate = *checkRate
			run.InsertRate = *insertRate
			run.Report = *report
			run.resolve()

			err := run.Validate()
			if err != nil {
				return err
			}

			if flags.Changed("driver") && run.Store != StoreSQLite {
				o.Warn("--driver is ignored for store %s", run.Store)
			}

			baseSeed := *seed
			if !flags.Changed("seed") {
				baseSeed = uint64(time.Now().UnixNano())
			}

			return execRun(ctx, o, run, baseSeed, *verbose)
		},
	}
}

func execRun(ctx context.Context, o *IO, cfg Config, seed uint64, verbosity int) error {
	runID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate run id: %w", err)
	}

	logger := newLogger(o.errOut, verbosity).With(zap.Stringer("run_id", runID))

	defer func() { _ = logger.Sync() }()

	coll, closeStore, err := stores[cfg.Store](ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store, err)
	}

	defer func() {
		closeErr := closeStore()
		if closeErr != nil {
			logger.Warn("close store", zap.Error(closeErr))
		}
	}()

	o.Printf("run %s: seed=%d store=%s trials=%d\n", runID, seed, storeLabel(cfg), cfg.Trials)

	var drv *idxcheck.Driver

	progress := func(e idxcheck.Event) {
		switch e.Kind {
		case idxcheck.EventPhase:
			if e.Phase == idxcheck.PhaseInit {
				o.Printf("trial %d: seed=%d\n", e.Trial, drv.TrialSeed(e.Trial))
			}
		case idxcheck.EventCheck:
			o.Printf("trial %d: check %s %d\n", e.Trial, e.Phase, e.Iteration)
		case idxcheck.EventInsert, idxcheck.EventDelete:
		}
	}

	drv = idxcheck.NewDriver(coll, idxcheck.NewRand(seed), cfg.Config,
		idxcheck.WithLogger(logger),
		idxcheck.WithObserver(progress))

	started := time.Now()
	summary, runErr := drv.Run(ctx)

	for i, s := range summary.Trials {
		if runErr != nil && i == len(summary.Trials)-1 {
			break
		}

		o.Printf("trial %d: ok fields=%d index=%s inserted=%d removed=%d checks=%d\n",
			s.Trial, len(s.Fields), s.Index, s.Inserted, s.Removed, s.Checks)
	}

	if cfg.Report != "" {
		rep := runReport{
			RunID:    runID.String(),
			Seed:     seed,
			Store:    cfg.Store,
			Config:   cfg.Config,
			Started:  started.UTC(),
			Finished: time.Now().UTC(),
			Trials:   make([]trialJSON, 0, len(summary.Trials)),
		}

		if cfg.Store == StoreSQLite {
			rep.Driver = cfg.Driver
		}

		for _, s := range summary.Trials {
			rep.Trials = append(rep.Trials, newTrialJSON(s))
		}

		rep.setOutcome(runErr)

		err = writeReport(cfg.Report, rep)
		if err != nil {
			if runErr == nil {
				return err
			}

			o.ErrPrintln("error:", err)
		}
	}

	var v *idxcheck.Violation
	if errors.As(runErr, &v) {
		o.ErrPrintf("%s", v.Report())

		return fmt.Errorf("%w (reproduce with --seed %d --trials %d)", v.Kind, seed, v.Trial+1)
	}

	if runErr != nil {
		return runErr
	}

	o.Printf("all %d trials passed\n", cfg.Trials)

	return nil
}

func storeLabel(cfg Config) string {
	label := cfg.Store
	if cfg.Store == StoreSQLite {
		label += "/" + cfg.Driver
	}

	if cfg.DB != "" {
		label += ":" + cfg.DB
	}

	return label
}
