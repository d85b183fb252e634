package idxcheck

import "fmt"

// Config sizes a run.
type Config struct {
	// Trials is the number of independent trials, each on a freshly reset
	// collection with a fresh schema and index.
	Trials int `json:"trials"`

	// SeedOps is the number of inserts in the seeding phase.
	SeedOps int `json:"seed_ops"` //nolint:tagliatelle // snake_case for config file

	// MutateOps is the number of insert/delete iterations in the mutating phase.
	MutateOps int `json:"mutate_ops"` //nolint:tagliatelle // snake_case for config file

	// CheckRate is the probability of an equivalence check after each
	// operation. The final check of every trial is unconditional.
	CheckRate float64 `json:"check_rate"` //nolint:tagliatelle // snake_case for config file

	// InsertRate is the probability that a mutating iteration inserts rather
	// than deletes by example.
	InsertRate float64 `json:"insert_rate"` //nolint:tagliatelle // snake_case for config file
}

// DefaultConfig returns the standard workload: 5 trials of 10000 inserts
// followed by 100000 mixed operations, checking 0.1% of the time.
func DefaultConfig() Config {
	return Config{
		Trials:     5,
		SeedOps:    10000,
		MutateOps:  100000,
		CheckRate:  0.001,
		InsertRate: 0.9,
	}
}

// Validate reports the first invalid setting as [ErrInvalidConfig].
func (c Config) Validate() error {
	switch {
	case c.Trials <= 0:
		return fmt.Errorf("%w: trials must be positive, got %d", ErrInvalidConfig, c.Trials)
	case c.SeedOps < 0:
		return fmt.Errorf("%w: seed_ops must be non-negative, got %d", ErrInvalidConfig, c.SeedOps)
	case c.MutateOps < 0:
		return fmt.Errorf("%w: mutate_ops must be non-negative, got %d", ErrInvalidConfig, c.MutateOps)
	case c.CheckRate < 0 || c.CheckRate > 1:
		return fmt.Errorf("%w: check_rate must be within [0, 1], got %g", ErrInvalidConfig, c.CheckRate)
	case c.InsertRate < 0 || c.InsertRate > 1:
		return fmt.Errorf("%w: insert_rate must be within [0, 1], got %g", ErrInvalidConfig, c.InsertRate)
	}

	return nil
}
