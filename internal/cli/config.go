package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/idxcheck/internal/sqlitecoll"
	"github.com/calvinalkan/idxcheck/pkg/idxcheck"
)

// Config errors.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
)

// Store names accepted by [Config.Store].
const (
	StoreSQLite = "sqlite"
	StoreBadger = "badger"
	StoreModel  = "model"
)

// ConfigFileName is the project config file name.
const ConfigFileName = ".idxcheck.json"

// Config is the resolved CLI configuration: the run sizing plus the store
// the run targets.
type Config struct {
	idxcheck.Config

	// Store is [StoreSQLite], [StoreBadger] or [StoreModel].
	Store string `json:"store"`

	// Driver selects the SQLite driver when Store is [StoreSQLite].
	Driver string `json:"driver"`

	// DB is the database file (sqlite) or directory (badger). Empty means
	// in memory. Relative paths resolve against the working directory.
	DB string `json:"db,omitempty"`

	// Report is an optional JSON report file written when a run ends.
	Report string `json:"report,omitempty"`

	// Resolved (not serialized)
	EffectiveCwd string        `json:"-"`
	Sources      ConfigSources `json:"-"`
}

// ConfigSources tracks which config files were loaded.
type ConfigSources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project or explicit config if loaded, empty otherwise
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Config: idxcheck.DefaultConfig(),
		Store:  StoreSQLite,
		Driver: sqlitecoll.DriverCGo,
	}
}

// Validate checks store selection and run sizing.
func (c Config) Validate() error {
	err := c.Config.Validate()
	if err != nil {
		return err
	}

	if _, ok := stores[c.Store]; !ok {
		return fmt.Errorf("%w: unknown store %q (want one of %s)",
			idxcheck.ErrInvalidConfig, c.Store, strings.Join(slices.Sorted(maps.Keys(stores)), ", "))
	}

	if !slices.Contains([]string{sqlitecoll.DriverCGo, sqlitecoll.DriverPureGo}, c.Driver) {
		return fmt.Errorf("%w: unknown driver %q (want sqlite3 or sqlite)", idxcheck.ErrInvalidConfig, c.Driver)
	}

	return nil
}

// resolve makes DB and Report absolute against the working directory.
func (c *Config) resolve() {
	if c.DB != "" && c.DB != sqlitecoll.MemoryPath && !filepath.IsAbs(c.DB) {
		c.DB = filepath.Join(c.EffectiveCwd, c.DB)
	}

	if c.Report != "" && !filepath.IsAbs(c.Report) {
		c.Report = filepath.Join(c.EffectiveCwd, c.Report)
	}
}

// globalConfigPath returns $XDG_CONFIG_HOME/idxcheck/config.json, falling
// back to ~/.config/idxcheck/config.json. Empty if neither is known.
func globalConfigPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "idxcheck", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "idxcheck", "config.json")
	}

	return ""
}

// LoadConfigInput holds the inputs for LoadConfig.
type LoadConfigInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	Env             map[string]string // environment variables
}

// LoadConfig loads configuration with the following precedence (highest wins):
//  1. Defaults
//  2. Global user config ($XDG_CONFIG_HOME/idxcheck/config.json)
//  3. Project config file (.idxcheck.json in the working directory, if present)
//     or the explicit config file given with -c
//  4. Command flags (applied by the command itself).
//
// Each file only overrides the keys it sets; zero values are honored.
func LoadConfig(input LoadConfigInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := DefaultConfig()
	cfg.EffectiveCwd = workDir

	if path := globalConfigPath(input.Env); path != "" {
		loaded, err := loadConfigFile(path, false, &cfg)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg.Sources.Global = path
		}
	}

	projectPath := filepath.Join(workDir, ConfigFileName)
	mustExist := false

	if input.ConfigPath != "" {
		projectPath = input.ConfigPath
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}

		mustExist = true

		_, statErr := os.Stat(projectPath)
		if statErr != nil {
			return Config{}, fmt.Errorf("%w: %s", ErrConfigFileNotFound, input.ConfigPath)
		}
	}

	loaded, err := loadConfigFile(projectPath, mustExist, &cfg)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg.Sources.Project = projectPath
	}

	err = cfg.Validate()
	if err != nil {
		return Config{}, err
	}

	cfg.resolve()

	return cfg, nil
}

// loadConfigFile applies the file at path on top of cfg. Missing files are
// skipped unless mustExist is set. Reports whether the file was applied.
func loadConfigFile(path string, mustExist bool, cfg *Config) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return false, nil
		}

		return false, fmt.Errorf("%w: %s", ErrConfigFileRead, path)
	}

	err = parseConfig(data, cfg)
	if err != nil {
		return false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return true, nil
}

// parseConfig decodes JSONC data onto cfg. Unknown keys are rejected.
func parseConfig(data []byte, cfg *Config) error {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("invalid JSONC: %w", err)
	}

	// Decode into a copy so a half-applied file never leaks into cfg.
	next := *cfg

	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()

	err = dec.Decode(&next)
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	*cfg = next

	return nil
}

// formatConfig renders the serializable part of cfg as indented JSON.
func formatConfig(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("format config: %w", err)
	}

	return string(data), nil
}
