package cli_test

import (
	"strings"
	"testing"

	"github.com/calvinalkan/idxcheck/internal/cli"
)

func script(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func Test_Repl_Replays_Scenario_When_Reading_Script(t *testing.T) {
	t.Parallel()

	for _, store := range []string{"model", "sqlite", "badger"} {
		t.Run(store, func(t *testing.T) {
			t.Parallel()

			c := cli.NewCLI(t)
			stdout, stderr, exitCode := c.RunWithInput(script(
				"# two fields, index {a: 1, b: -1}",
				"reset 2",
				"index 1 -1",
				"insert 1 5",
				"insert 1 7",
				"insert 2 5",
				"find [1,1]",
				"delete 1 5",
				"find natural in:1,2 *",
				"sort -1 1",
				"find (0,2] [5,7)",
				"validate",
				"check",
			), "repl", "--store", store)

			if got, want := exitCode, 0; got != want {
				t.Fatalf("exitCode=%d, want=%d\nstderr: %s", got, want, stderr)
			}

			if got, want := stderr, ""; got != want {
				t.Errorf("stderr=%q, want=%q", got, want)
			}

			cli.AssertContains(t, stdout, "fields: [a b]")
			cli.AssertContains(t, stdout, "index: {a: 1, b: -1}")
			cli.AssertContains(t, stdout, "inserted {a: 1, b: 5}")
			cli.AssertContains(t, stdout, "{a: 1, b: 7}\n{a: 1, b: 5}\n(2 documents")
			cli.AssertContains(t, stdout, "removed 1")
			cli.AssertContains(t, stdout, "{a: 1, b: 7}\n{a: 2, b: 5}\n(2 documents")
			cli.AssertContains(t, stdout, "hint {$natural: 1}")
			cli.AssertContains(t, stdout, "sort: {a: -1, b: 1}")
			cli.AssertContains(t, stdout, "{a: 2, b: 5}\n(1 documents")
			cli.AssertContains(t, stdout, "valid: ")
			cli.AssertContains(t, stdout, "\nok\n")
		})
	}
}

func Test_Repl_Fill_Then_Check_Passes_When_Store_Is_Consistent(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout, stderr, exitCode := c.RunWithInput(script(
		"seed 42",
		"reset 3",
		"index 1 1 -1",
		"fill 300",
		"check",
		"check",
		"delete 0 0 0",
		"check",
		"quit",
		"check",
	), "repl", "--store", "sqlite", "--driver", "sqlite")

	if got, want := exitCode, 0; got != want {
		t.Fatalf("exitCode=%d, want=%d\nstderr: %s", got, want, stderr)
	}

	cli.AssertContains(t, stdout, "seed: 42")
	cli.AssertContains(t, stdout, "inserted 300 documents")

	// The line after quit is never executed.
	if got, want := strings.Count(stdout, "\nok\n"), 3; got != want {
		t.Errorf("ok count=%d, want=%d\nstdout: %s", got, want, stdout)
	}
}

func Test_Repl_Prints_Report_When_Check_Finds_Violation(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout, stderr, exitCode := c.RunWithInput(script(
		"reset 1",
		"index 1",
		"check",
	), "repl", "--store", cli.StoreCorrupt, "--seed", "9")

	if got, want := exitCode, 0; got != want {
		t.Fatalf("exitCode=%d, want=%d\nstderr: %s", got, want, stderr)
	}

	cli.AssertContains(t, stdout, "integrity violation")
	cli.AssertContains(t, stdout, "seed:      9")
	cli.AssertContains(t, stdout, "details:   index entry without document")
}

func Test_Repl_Reports_Error_And_Continues_When_Command_Is_Invalid(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name    string
		lines   []string
		wantErr string
	}{
		{name: "unknown command", lines: []string{"frob"}, wantErr: `unknown command "frob"`},
		{name: "insert before reset", lines: []string{"insert 1"}, wantErr: "no active fields (run reset first)"},
		{name: "find before index", lines: []string{"reset 1", "find"}, wantErr: "no index (run index first)"},
		{name: "check before index", lines: []string{"reset 1", "check"}, wantErr: "no index (run index first)"},
		{name: "too many fields", lines: []string{"reset 9"}, wantErr: "field count must be 1-5"},
		{name: "reset usage", lines: []string{"reset"}, wantErr: "usage: reset <n>"},
		{name: "wrong value count", lines: []string{"reset 2", "insert 1"}, wantErr: "want 2 values, got 1"},
		{name: "invalid value", lines: []string{"reset 1", "insert x"}, wantErr: `invalid value "x"`},
		{name: "invalid direction", lines: []string{"reset 1", "index up"}, wantErr: `invalid direction "up"`},
		{name: "invalid condition", lines: []string{"reset 1", "index 1", "find 5"}, wantErr: `invalid condition "5"`},
		{name: "inverted range", lines: []string{"reset 1", "index 1", "find [7,2]"}, wantErr: "lower bound above upper bound"},
		{name: "invalid membership", lines: []string{"reset 1", "index 1", "find in:1,x"}, wantErr: `invalid membership value "x"`},
		{name: "too many conditions", lines: []string{"reset 1", "index 1", "find * *"}, wantErr: "want at most 1 conditions, got 2"},
		{name: "invalid seed", lines: []string{"seed -1"}, wantErr: `invalid seed "-1"`},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := cli.NewCLI(t)
			lines := append(append([]string{}, tt.lines...), "help")
			stdout, stderr, exitCode := c.RunWithInput(script(lines...), "repl", "--store", "model")

			if got, want := exitCode, 0; got != want {
				t.Fatalf("exitCode=%d, want=%d", got, want)
			}

			cli.AssertContains(t, stderr, "error: "+tt.wantErr)

			// The session keeps going after an error.
			cli.AssertContains(t, stdout, "Commands:")
		})
	}
}

func Test_Repl_Finds_Nothing_When_Membership_Is_Empty(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout, _, exitCode := c.RunWithInput(script(
		"reset 1",
		"index -1",
		"insert 3",
		"find in:",
		"find natural in:",
	), "repl", "--store", "badger")

	if got, want := exitCode, 0; got != want {
		t.Fatalf("exitCode=%d, want=%d", got, want)
	}

	if got, want := strings.Count(stdout, "(0 documents"), 2; got != want {
		t.Errorf("empty result count=%d, want=%d\nstdout: %s", got, want, stdout)
	}
}

func Test_Repl_Rejects_Arguments_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("repl", "extra")

	cli.AssertContains(t, stderr, "unexpected arguments: extra")
}
