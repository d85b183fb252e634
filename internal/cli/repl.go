package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/calvinalkan/idxcheck/pkg/idxcheck"
)

var (
	errNoSchema = errors.New("no active fields (run reset first)")
	errNoIndex  = errors.New("no index (run index first)")
	errUsage    = errors.New("usage")
)

const replHelp = `Commands:
  reset <n>                 Drop everything; activate the first n fields (1-5)
  index <dir>...            Create the index, one direction (1|-1) per field
  sort <dir>...             Set the sort order used by find
  insert <v>...             Insert a document, one value per field
  fill <n>                  Insert n random documents
  delete <v>...             Delete every document equal to the template
  find [natural] [<cond>...]
                            Query through the index (or a full scan); one
                            condition per field: [lo,hi] (lo,hi] [lo,hi) (lo,hi)
                            in:v,v,... or * for no condition
  check                     Validate, then compare index and scan for a random query
  validate                  Run the store's integrity check
  seed <n>                  Reseed the random source used by fill and check
  help                      Show this help
  quit                      Exit`

// ReplCmd returns the repl command. Input is read from stdin; a terminal
// gets line editing and history.
func ReplCmd(cfg *Config, stdin io.Reader) *Command {
	flags := flag.NewFlagSet("repl", flag.ContinueOnError)
	store := flags.String("store", cfg.Store, "Store under test: sqlite, badger or model")
	driver := flags.String("driver", cfg.Driver, "SQLite driver: sqlite3 (cgo) or sqlite (pure Go)")
	db := flags.String("db", cfg.DB, "Database `path` (default: in memory)")
	seed := flags.Uint64("seed", 1, "Random `seed` for fill and check")

	return &Command{
		Flags: flags,
		Usage: "repl [flags]",
		Short: "Drive a store interactively",
		Long:  "Drive a store interactively to replay a failing scenario by hand.\n\n" + replHelp,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("%w: %s", errUnexpectedArgs, strings.Join(args, " "))
			}

			sess := *cfg
			sess.Store = *store
			sess.Driver = *driver
			sess.DB = *db
			sess.resolve()

			err := sess.Validate()
			if err != nil {
				return err
			}

			coll, closeStore, err := stores[sess.Store](ctx, sess, zap.NewNop())
			if err != nil {
				return fmt.Errorf("open %s store: %w", sess.Store, err)
			}

			defer func() { _ = closeStore() }()

			s := newSession(coll, o, *seed)

			if f, ok := stdin.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
				return s.interactive(ctx, storeLabel(sess))
			}

			return s.script(ctx, stdin)
		},
	}
}

// session holds the state of one repl.
type session struct {
	coll   idxcheck.Collection
	o      *IO
	src    *idxcheck.Rand
	gen    *idxcheck.Generator
	oracle *idxcheck.Oracle

	fields []idxcheck.Field
	index  idxcheck.IndexSpec
	sort   idxcheck.SortSpec
}

func newSession(coll idxcheck.Collection, o *IO, seed uint64) *session {
	src := idxcheck.NewRand(seed)
	gen := idxcheck.NewGenerator(src)

	return &session{
		coll:   coll,
		o:      o,
		src:    src,
		gen:    gen,
		oracle: idxcheck.NewOracle(coll, gen),
	}
}

// script executes one command per input line until EOF or quit.
func (s *session) script(ctx context.Context, in io.Reader) error {
	if in == nil {
		return nil
	}

	scanner := bufio.NewScanner(in)

	for scanner.Scan() {
		quit := s.execLine(ctx, scanner.Text())
		if quit {
			return nil
		}
	}

	err := scanner.Err()
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	return nil
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".idxcheck_history")
}

// interactive runs a liner prompt loop.
func (s *session) interactive(ctx context.Context, label string) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(prefix string) []string {
		var out []string

		for _, c := range []string{"reset", "index", "sort", "insert", "fill", "delete", "find", "check", "validate", "seed", "help", "quit"} {
			if strings.HasPrefix(c, prefix) {
				out = append(out, c)
			}
		}

		return out
	})

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = line.ReadHistory(f)
		_ = f.Close()
	}

	defer func() {
		if path := historyFile(); path != "" {
			if f, err := os.Create(path); err == nil {
				_, _ = line.WriteHistory(f)
				_ = f.Close()
			}
		}
	}()

	s.o.Printf("idxcheck repl (%s). Type 'help' for commands.\n", label)

	for {
		input, err := line.Prompt("idxcheck> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("read input: %w", err)
		}

		if strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
		}

		if s.execLine(ctx, input) {
			return nil
		}
	}
}

// execLine runs one command and reports whether the session should end.
// Command errors are printed and do not end the session.
func (s *session) execLine(ctx context.Context, input string) bool {
	parts := strings.Fields(input)
	if len(parts) == 0 || strings.HasPrefix(parts[0], "#") {
		return false
	}

	cmd, args := strings.ToLower(parts[0]), parts[1:]

	var err error

	switch cmd {
	case "quit", "exit", "q":
		return true
	case "help", "?":
		s.o.Println(replHelp)
	case "reset":
		err = s.reset(ctx, args)
	case "index":
		err = s.createIndex(ctx, args)
	case "sort":
		err = s.setSort(args)
	case "insert":
		err = s.insert(ctx, args)
	case "fill":
		err = s.fill(ctx, args)
	case "delete":
		err = s.delete(ctx, args)
	case "find":
		err = s.find(ctx, args)
	case "check":
		err = s.check(ctx)
	case "validate":
		err = s.validate(ctx)
	case "seed":
		err = s.reseed(args)
	default:
		err = fmt.Errorf("unknown command %q (type 'help' for commands)", cmd)
	}

	if err != nil {
		s.o.ErrPrintln("error:", err)
	}

	return false
}

func (s *session) reset(ctx context.Context, args []string) error {
	universe := idxcheck.Universe()

	if len(args) != 1 {
		return fmt.Errorf("%w: reset <n>", errUsage)
	}

	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(universe) {
		return fmt.Errorf("field count must be 1-%d, got %q", len(universe), args[0])
	}

	fields := universe[:n]

	err = s.coll.Reset(ctx, fields)
	if err != nil {
		return err
	}

	s.fields = fields
	s.index = nil
	s.sort = nil

	s.o.Printf("fields: %v\n", fields)

	return nil
}

func (s *session) keyParts(args []string) ([]idxcheck.KeyPart, error) {
	if s.fields == nil {
		return nil, errNoSchema
	}

	if len(args) != len(s.fields) {
		return nil, fmt.Errorf("want %d directions, got %d", len(s.fields), len(args))
	}

	parts := make([]idxcheck.KeyPart, len(args))

	for i, a := range args {
		switch strings.ToLower(a) {
		case "1", "asc":
			parts[i] = idxcheck.KeyPart{Field: s.fields[i], Direction: idxcheck.Ascending}
		case "-1", "desc":
			parts[i] = idxcheck.KeyPart{Field: s.fields[i], Direction: idxcheck.Descending}
		default:
			return nil, fmt.Errorf("invalid direction %q (want 1 or -1)", a)
		}
	}

	return parts, nil
}

func (s *session) createIndex(ctx context.Context, args []string) error {
	parts, err := s.keyParts(args)
	if err != nil {
		return err
	}

	spec := idxcheck.IndexSpec(parts)

	err = s.coll.CreateIndex(ctx, spec)
	if err != nil {
		return err
	}

	s.index = spec
	if s.sort == nil {
		s.sort = idxcheck.SortSpec(parts)
	}

	s.o.Printf("index: %s\n", spec)

	return nil
}

func (s *session) setSort(args []string) error {
	parts, err := s.keyParts(args)
	if err != nil {
		return err
	}

	s.sort = idxcheck.SortSpec(parts)
	s.o.Printf("sort: %s\n", s.sort)

	return nil
}

func (s *session) document(args []string) (idxcheck.Document, error) {
	if s.fields == nil {
		return nil, errNoSchema
	}

	if len(args) != len(s.fields) {
		return nil, fmt.Errorf("want %d values, got %d", len(s.fields), len(args))
	}

	doc := make(idxcheck.Document, len(args))

	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q", a)
		}

		doc[s.fields[i]] = v
	}

	return doc, nil
}

func (s *session) insert(ctx context.Context, args []string) error {
	doc, err := s.document(args)
	if err != nil {
		return err
	}

	err = s.coll.Insert(ctx, doc)
	if err != nil {
		return err
	}

	s.o.Printf("inserted %s\n", doc)

	return nil
}

func (s *session) fill(ctx context.Context, args []string) error {
	if s.fields == nil {
		return errNoSchema
	}

	if len(args) != 1 {
		return fmt.Errorf("%w: fill <n>", errUsage)
	}

	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return fmt.Errorf("invalid count %q", args[0])
	}

	for range n {
		err = s.coll.Insert(ctx, s.gen.Document(s.fields))
		if err != nil {
			return err
		}
	}

	s.o.Printf("inserted %d documents\n", n)

	return nil
}

func (s *session) delete(ctx context.Context, args []string) error {
	template, err := s.document(args)
	if err != nil {
		return err
	}

	removed, err := s.coll.DeleteByExample(ctx, template)
	if err != nil {
		return err
	}

	s.o.Printf("removed %d\n", removed)

	return nil
}

func (s *session) find(ctx context.Context, args []string) error {
	if s.fields == nil {
		return errNoSchema
	}

	hint := idxcheck.UseIndex(s.index)

	if len(args) > 0 && args[0] == "natural" {
		hint = idxcheck.NaturalOrder
		args = args[1:]
	} else if s.index == nil {
		return errNoIndex
	}

	if len(args) > len(s.fields) {
		return fmt.Errorf("want at most %d conditions, got %d", len(s.fields), len(args))
	}

	var pred idxcheck.Predicate

	for i, a := range args {
		if a == "*" {
			continue
		}

		cond, err := parseCondition(a)
		if err != nil {
			return err
		}

		pred = append(pred, idxcheck.Clause{Field: s.fields[i], Condition: cond})
	}

	docs, err := s.coll.Query(ctx, idxcheck.Query{Predicate: pred, Sort: s.sort, Hint: hint, ExcludeID: true})
	if err != nil {
		return err
	}

	for _, d := range docs {
		s.o.Println(d)
	}

	s.o.Printf("(%d documents, predicate %s, sort %s, hint %s)\n", len(docs), pred, s.sort, hint)

	return nil
}

// parseCondition parses "[lo,hi]" style ranges (either bracket may be
// open) and "in:v,v,..." memberships.
func parseCondition(s string) (idxcheck.Condition, error) {
	if rest, ok := strings.CutPrefix(s, "in:"); ok {
		m := idxcheck.Membership{}

		if rest == "" {
			return m, nil
		}

		for _, part := range strings.Split(rest, ",") {
			v, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid membership value %q", part)
			}

			m.Values = append(m.Values, v)
		}

		return m, nil
	}

	if len(s) < 5 {
		return nil, fmt.Errorf("invalid condition %q", s)
	}

	open, body, end := s[0], s[1:len(s)-1], s[len(s)-1]
	if (open != '[' && open != '(') || (end != ']' && end != ')') {
		return nil, fmt.Errorf("invalid condition %q", s)
	}

	loStr, hiStr, ok := strings.Cut(body, ",")
	if !ok {
		return nil, fmt.Errorf("invalid range %q", s)
	}

	lo, err := strconv.Atoi(loStr)
	if err != nil {
		return nil, fmt.Errorf("invalid range bound %q", loStr)
	}

	hi, err := strconv.Atoi(hiStr)
	if err != nil {
		return nil, fmt.Errorf("invalid range bound %q", hiStr)
	}

	if lo > hi {
		return nil, fmt.Errorf("range %q has lower bound above upper bound", s)
	}

	return idxcheck.Range{
		Lower:          lo,
		LowerInclusive: open == '[',
		Upper:          hi,
		UpperInclusive: end == ']',
	}, nil
}

func (s *session) check(ctx context.Context) error {
	if s.fields == nil {
		return errNoSchema
	}

	if s.index == nil {
		return errNoIndex
	}

	err := s.oracle.Check(ctx, s.fields, s.index)

	var v *idxcheck.Violation
	if errors.As(err, &v) {
		v.Seed = s.src.Seed()
		s.o.Printf("%s", v.Report())

		return nil
	}

	if err != nil {
		return err
	}

	s.o.Println("ok")

	return nil
}

func (s *session) validate(ctx context.Context) error {
	v, err := s.coll.Validate(ctx)
	if err != nil {
		return err
	}

	status := "valid"
	if !v.Valid {
		status = "invalid"
	}

	s.o.Printf("%s: %s\n", status, v.Details)

	return nil
}

func (s *session) reseed(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: seed <n>", errUsage)
	}

	seed, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid seed %q", args[0])
	}

	s.src.Reseed(seed)
	s.o.Printf("seed: %d\n", seed)

	return nil
}
