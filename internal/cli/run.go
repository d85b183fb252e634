package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
)

const defaultCommand = "run"

// Run is the main entry point. Returns exit code.
// sigCh can be nil if signal handling is not needed (e.g., in tests).
func Run(stdin io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	globalFlags := flag.NewFlagSet("idxcheck", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	globalFlags.SetOutput(&strings.Builder{})
	flagHelp := globalFlags.BoolP("help", "h", false, "Show help")
	flagCwd := globalFlags.StringP("cwd", "C", "", "Run as if started in `dir`")
	flagConfig := globalFlags.StringP("config", "c", "", "Use specified config `file`")

	if len(args) == 0 {
		args = []string{"idxcheck"}
	}

	err := globalFlags.Parse(args[1:])
	if err != nil {
		fprintln(errOut, "error:", err)
		fprintln(errOut)
		printGlobalOptions(errOut, globalFlags)

		return 1
	}

	cfg, err := LoadConfig(LoadConfigInput{
		WorkDirOverride: *flagCwd,
		ConfigPath:      *flagConfig,
		Env:             env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	commands := []*Command{
		RunCmd(&cfg),
		ReplCmd(&cfg, stdin),
		PrintConfigCmd(&cfg),
	}

	commandMap := make(map[string]*Command, len(commands))
	for _, cmd := range commands {
		commandMap[cmd.Name()] = cmd
	}

	if *flagHelp {
		printUsage(out, globalFlags, commands)

		return 0
	}

	commandAndArgs := globalFlags.Args()

	cmdName := defaultCommand
	if len(commandAndArgs) > 0 {
		cmdName = commandAndArgs[0]
		commandAndArgs = commandAndArgs[1:]
	}

	cmd, ok := commandMap[cmdName]
	if !ok {
		fprintln(errOut, "error: unknown command:", cmdName)
		fprintln(errOut)
		printUsage(errOut, globalFlags, commands)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				fprintln(errOut, "interrupted, stopping (press Ctrl+C again to force exit)")
				cancel()
			case <-ctx.Done():
				return
			}

			select {
			case <-sigCh:
				fprintln(errOut, "forced exit")
				os.Exit(130)
			case <-ctx.Done():
			}
		}()
	}

	return cmd.Run(ctx, NewIO(out, errOut), commandAndArgs)
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printGlobalOptions(w io.Writer, flags *flag.FlagSet) {
	fprintln(w, "Usage: idxcheck [flags] <command> [args]")
	fprintln(w)
	fprintln(w, "Global flags:")
	_, _ = fmt.Fprint(w, flags.FlagUsages())
}

func printUsage(w io.Writer, flags *flag.FlagSet, commands []*Command) {
	fprintln(w, "idxcheck - randomized index versus full scan equivalence tester")
	fprintln(w)
	printGlobalOptions(w, flags)
	fprintln(w)
	fprintln(w, "Commands:")

	for _, cmd := range commands {
		fprintln(w, cmd.HelpLine())
	}

	fprintln(w)
	fprintln(w, "Without a command, run is executed with its defaults.")
	fprintln(w, "Use 'idxcheck <command> --help' for command flags.")
}
