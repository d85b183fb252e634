package cli_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/idxcheck/internal/cli"
)

// small keeps CLI runs fast; every store shares the same workload shape.
var small = []string{"--trials", "2", "--seed-ops", "40", "--mutate-ops", "80", "--check-rate", "0.05"}

func runArgs(extra ...string) []string {
	return append(append([]string{"run"}, small...), extra...)
}

type reportFile struct {
	RunID  string `json:"run_id"`
	Seed   uint64 `json:"seed"`
	Store  string `json:"store"`
	Driver string `json:"driver"`
	Status string `json:"status"`
	Error  string `json:"error"`
	Config struct {
		Trials  int `json:"trials"`
		SeedOps int `json:"seed_ops"`
	} `json:"config"`
	Violation *struct {
		Trial   int    `json:"trial"`
		Seed    uint64 `json:"seed"`
		Phase   string `json:"phase"`
		Details string `json:"details"`
		Index   string `json:"index"`
	} `json:"violation"`
	Trials []struct {
		Trial    int      `json:"trial"`
		Seed     uint64   `json:"seed"`
		Fields   []string `json:"fields"`
		Inserted int      `json:"inserted"`
		Checks   int      `json:"checks"`
	} `json:"trials"`
}

func readReport(t *testing.T, c *cli.CLI, name string) reportFile {
	t.Helper()

	var r reportFile

	require.NoError(t, json.Unmarshal([]byte(c.ReadFile(name)), &r))

	return r
}

func Test_Run_Passes_When_Store_Is_Consistent(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name string
		args []string
	}{
		{name: "model", args: []string{"--store", "model"}},
		{name: "sqlite cgo", args: []string{"--store", "sqlite", "--driver", "sqlite3"}},
		{name: "sqlite pure go", args: []string{"--store", "sqlite", "--driver", "sqlite"}},
		{name: "badger in memory", args: []string{"--store", "badger"}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := cli.NewCLI(t)
			stdout := c.MustRun(runArgs(append(tt.args, "--seed", "11")...)...)

			cli.AssertContains(t, stdout, "seed=11")
			cli.AssertContains(t, stdout, "trial 0: seed=11")
			cli.AssertContains(t, stdout, "trial 1: seed=12")
			cli.AssertContains(t, stdout, "trial 1: ok fields=")
			cli.AssertContains(t, stdout, "all 2 trials passed")
		})
	}
}

func Test_Run_Uses_File_Backed_Stores_When_DB_Is_Set(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		store string
		db    string
	}{
		{store: "sqlite", db: "run.db"},
		{store: "badger", db: "kv"},
	} {
		t.Run(tt.store, func(t *testing.T) {
			t.Parallel()

			c := cli.NewCLI(t)
			stdout := c.MustRun(runArgs("--store", tt.store, "--db", tt.db, "--seed", "3")...)

			cli.AssertContains(t, stdout, c.Path(tt.db))
			cli.AssertContains(t, stdout, "all 2 trials passed")
		})
	}
}

func Test_Run_Prints_Identical_Progress_When_Seed_Repeats(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	first := c.MustRun(runArgs("--store", "model", "--seed", "99")...)
	second := c.MustRun(runArgs("--store", "model", "--seed", "99")...)

	// The first line carries the run id, which differs per run.
	_, firstBody, _ := strings.Cut(first, "\n")
	_, secondBody, _ := strings.Cut(second, "\n")

	assert.Equal(t, firstBody, secondBody)
}

func Test_Run_Writes_Report_When_Requested(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun(runArgs("--store", "sqlite", "--seed", "5", "--report", "out/report.json")...)

	r := readReport(t, c, "out/report.json")

	assert.NotEmpty(t, r.RunID)
	assert.Equal(t, uint64(5), r.Seed)
	assert.Equal(t, "sqlite", r.Store)
	assert.Equal(t, "sqlite3", r.Driver)
	assert.Equal(t, "ok", r.Status)
	assert.Empty(t, r.Error)
	assert.Nil(t, r.Violation)
	assert.Equal(t, 2, r.Config.Trials)
	assert.Equal(t, 40, r.Config.SeedOps)

	require.Len(t, r.Trials, 2)

	for i, tr := range r.Trials {
		assert.Equal(t, i, tr.Trial)
		assert.Equal(t, uint64(5+i), tr.Seed)
		assert.NotEmpty(t, tr.Fields)
		assert.GreaterOrEqual(t, tr.Inserted, 40)
		assert.GreaterOrEqual(t, tr.Checks, 1)
	}
}

func Test_Run_Uses_Project_Config_When_Flags_Are_Absent(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteFile(cli.ConfigFileName, `{
		"store": "model",
		"trials": 3,
		"seed_ops": 20,
		"mutate_ops": 20,
		"report": "from-config.json",
	}`)

	stdout := c.MustRun("run", "--seed", "1")

	cli.AssertContains(t, stdout, "store=model trials=3")
	cli.AssertContains(t, stdout, "all 3 trials passed")

	r := readReport(t, c, "from-config.json")
	assert.Len(t, r.Trials, 3)
	assert.Empty(t, r.Driver)
}

func Test_Run_Fails_With_Reproduction_Hint_When_Store_Is_Corrupt(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout, stderr, exitCode := c.Run(runArgs("--store", cli.StoreCorrupt, "--seed", "7", "--check-rate", "0", "--report", "r.json")...)

	if got, want := exitCode, 1; got != want {
		t.Fatalf("exitCode=%d, want=%d", got, want)
	}

	cli.AssertContains(t, stdout, "trial 0: seed=7")
	cli.AssertNotContains(t, stdout, "trial 0: ok")
	cli.AssertNotContains(t, stdout, "passed")

	cli.AssertContains(t, stderr, "integrity violation")
	cli.AssertContains(t, stderr, "seed:      7")
	cli.AssertContains(t, stderr, "details:   index entry without document")
	cli.AssertContains(t, stderr, "reproduce with --seed 7 --trials 1")

	r := readReport(t, c, "r.json")
	assert.Equal(t, "integrity_violation", r.Status)
	require.NotNil(t, r.Violation)
	assert.Equal(t, 0, r.Violation.Trial)
	assert.Equal(t, uint64(7), r.Violation.Seed)
	assert.Equal(t, "done", r.Violation.Phase)
	assert.Equal(t, "index entry without document", r.Violation.Details)
}

func Test_Run_Reports_Both_Sequences_When_Index_Drops_Rows(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout, stderr, exitCode := c.Run("run", "--store", cli.StoreBroken, "--seed", "21",
		"--trials", "5", "--seed-ops", "200", "--mutate-ops", "200", "--check-rate", "1", "--report", "r.json")

	if got, want := exitCode, 1; got != want {
		t.Fatalf("exitCode=%d, want=%d\nstdout: %s", got, want, stdout)
	}

	cli.AssertContains(t, stderr, "equivalence violation")
	cli.AssertContains(t, stderr, "predicate: {")
	cli.AssertContains(t, stderr, "sort:      {")
	cli.AssertContains(t, stderr, "index:     {")
	cli.AssertContains(t, stderr, "indexed (")
	cli.AssertContains(t, stderr, "scanned (")
	cli.AssertContains(t, stderr, "reproduce with --seed 21")

	r := readReport(t, c, "r.json")
	assert.Equal(t, "equivalence_violation", r.Status)
	require.NotNil(t, r.Violation)
	assert.NotEmpty(t, r.Violation.Index)
}

func Test_Run_Fails_When_Store_Errors(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	_, stderr, exitCode := c.Run(runArgs("--store", cli.StoreFlaky, "--seed", "1", "--report", "r.json")...)

	if got, want := exitCode, 1; got != want {
		t.Fatalf("exitCode=%d, want=%d", got, want)
	}

	cli.AssertContains(t, stderr, "store error: insert: injected fault")
	cli.AssertNotContains(t, stderr, "reproduce with")

	r := readReport(t, c, "r.json")
	assert.Equal(t, "error", r.Status)
	assert.Nil(t, r.Violation)
	require.Len(t, r.Trials, 1)
	assert.Equal(t, 5, r.Trials[0].Inserted)
}

func Test_Run_Rejects_Invalid_Flags_When_Invoked(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "zero trials", args: []string{"--trials", "0"}, wantErr: "trials must be positive"},
		{name: "check rate", args: []string{"--check-rate", "2"}, wantErr: "check_rate must be within [0, 1]"},
		{name: "unknown store", args: []string{"--store", "mongo"}, wantErr: `unknown store "mongo"`},
		{name: "unknown driver", args: []string{"--driver", "pgx"}, wantErr: `unknown driver "pgx"`},
		{name: "extra args", args: []string{"now"}, wantErr: "unexpected arguments: now"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := cli.NewCLI(t)
			stderr := c.MustFail(append([]string{"run"}, tt.args...)...)

			cli.AssertContains(t, stderr, tt.wantErr)
		})
	}
}

func Test_Run_Warns_When_Driver_Is_Given_For_Other_Store(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout, stderr, exitCode := c.Run(runArgs("--store", "model", "--driver", "sqlite", "--seed", "2")...)

	if got, want := exitCode, 0; got != want {
		t.Fatalf("exitCode=%d, want=%d\nstderr: %s", got, want, stderr)
	}

	cli.AssertContains(t, stdout, "all 2 trials passed")
	cli.AssertContains(t, stderr, "warning: --driver is ignored for store model")
}

func Test_Run_Logs_Json_Lines_When_Verbose(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	_, stderr, exitCode := c.Run(runArgs("--store", "model", "--seed", "4", "-v")...)

	if got, want := exitCode, 0; got != want {
		t.Fatalf("exitCode=%d, want=%d\nstderr: %s", got, want, stderr)
	}

	cli.AssertContains(t, stderr, `"msg":"trial start"`)
	cli.AssertContains(t, stderr, `"run_id":"`)
	cli.AssertNotContains(t, stderr, `"msg":"phase"`)

	first, _, _ := strings.Cut(stderr, "\n")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(first), &entry))
	assert.Equal(t, "info", entry["level"])
}
