package cmds

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gomemscan/codec"
	"gomemscan/config"
	"gomemscan/locator"
	"gomemscan/process"
	"gomemscan/session"

	"github.com/cosiner/argv"
	"github.com/go-delve/liner"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

const historyFile string = ".locate_history"

var errQuit = errors.New("quit")

type locateCmd struct {
	aliases []string
	usage   string
	fn      func(t *locateTerm, args []string) error
}

var locateCmds []locateCmd

func init() {
	locateCmds = []locateCmd{
		{aliases: []string{"find", "f"}, usage: "find <value>      narrow the candidates to addresses holding value and keep them", fn: (*locateTerm).find},
		{aliases: []string{"probe", "p"}, usage: "probe <value>     count the candidates holding value without keeping them", fn: (*locateTerm).probe},
		{aliases: []string{"diff", "d"}, usage: "diff              list the candidates whose value changed since the last step", fn: (*locateTerm).diff},
		{aliases: []string{"list", "ls"}, usage: "list [n]          print up to n candidates with their current value", fn: (*locateTerm).list},
		{aliases: []string{"set", "s"}, usage: "set <value>       write value to every candidate", fn: (*locateTerm).set},
		{aliases: []string{"help", "h"}, usage: "help              show this text", fn: (*locateTerm).help},
		{aliases: []string{"quit", "exit", "q"}, usage: "quit              leave", fn: func(*locateTerm, []string) error { return errQuit }},
	}
}

// locateTerm narrows a locator interactively. A bare number is "find <number>".
type locateTerm struct {
	sess *session.Session
	loc  *locator.Locator
	out  io.Writer
}

func newLocateTerm(sess *session.Session, out io.Writer, opts ...locator.Option) (*locateTerm, error) {
	loc, err := sess.Locator(opts...)
	if err != nil {
		return nil, err
	}
	return &locateTerm{sess: sess, loc: loc, out: out}, nil
}

// exec runs one input line. It returns errQuit when the user asked to leave.
func (t *locateTerm) exec(line string) error {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	v, err := argv.Argv(line,
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return err
	}
	if len(v) != 1 {
		return fmt.Errorf("illegal command line '%s'", line)
	}
	args := v[0]
	if len(args) == 0 {
		return nil
	}

	if _, err := strconv.ParseFloat(args[0], 64); err == nil {
		return t.find(args)
	}

	for _, c := range locateCmds {
		if lo.Contains(c.aliases, strings.ToLower(args[0])) {
			return c.fn(t, args[1:])
		}
	}
	return fmt.Errorf("command not available: %s, type 'help'", args[0])
}

func valueArg(args []string) (float64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected one value")
	}
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", args[0])
	}
	return v, nil
}

func (t *locateTerm) find(args []string) error {
	v, err := valueArg(args)
	if err != nil {
		return err
	}
	set, err := t.loc.Find(v, true)
	if err != nil {
		return err
	}
	t.summary(set)
	return nil
}

func (t *locateTerm) probe(args []string) error {
	v, err := valueArg(args)
	if err != nil {
		return err
	}
	set, err := t.loc.Feed(v, false)
	if err != nil {
		return err
	}
	t.summary(set)
	return nil
}

func (t *locateTerm) diff(args []string) error {
	set, err := t.loc.Diff(true)
	if err != nil {
		return err
	}
	t.print(set, 0)
	fmt.Fprintf(t.out, "%d changed\n", set.Len())
	return nil
}

func (t *locateTerm) list(args []string) error {
	limit := 20
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid count %q", args[0])
		}
		limit = n
	}

	set := t.loc.Addresses()
	if set == nil {
		return locator.ErrNoValue
	}
	t.print(set, limit)
	return nil
}

func (t *locateTerm) set(args []string) error {
	v, err := valueArg(args)
	if err != nil {
		return err
	}
	set := t.loc.Addresses()
	if set == nil {
		return locator.ErrNoValue
	}

	written, failed := 0, 0
	for _, typ := range set.Types() {
		for _, a := range set[typ] {
			if _, err := t.sess.Write(a, v); err != nil {
				if errors.Is(err, process.ErrProcessNotOpen) {
					return err
				}
				failed++
				continue
			}
			written++
		}
	}
	fmt.Fprintf(t.out, "wrote %d addresses, %d failed\n", written, failed)
	return nil
}

func (t *locateTerm) help(args []string) error {
	fmt.Fprintln(t.out, "A bare number is the same as 'find <number>'.")
	for _, c := range locateCmds {
		fmt.Fprintln(t.out, "  "+c.usage)
	}
	return nil
}

func (t *locateTerm) summary(set locator.CandidateSet) {
	parts := lo.FilterMap(set.Types(), func(typ codec.ScalarType, _ int) (string, bool) {
		return fmt.Sprintf("%s: %d", typ, len(set[typ])), len(set[typ]) > 0
	})
	fmt.Fprintf(t.out, "%d candidates", set.Len())
	if len(parts) > 0 {
		fmt.Fprintf(t.out, " (%s)", strings.Join(parts, ", "))
	}
	fmt.Fprintln(t.out)
}

// print lists candidates ordered by address. A limit of zero prints all of them.
func (t *locateTerm) print(set locator.CandidateSet, limit int) {
	var all []process.Address
	for _, typ := range set.Types() {
		all = append(all, set[typ]...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Value < all[j].Value
	})

	for i, a := range all {
		if limit > 0 && i >= limit {
			fmt.Fprintf(t.out, "... %d more\n", len(all)-i)
			return
		}
		cur := "?"
		if v, err := t.sess.Read(a); err == nil {
			cur = formatValue(a.Type, v)
		}
		fmt.Fprintf(t.out, "%s %-6s %s\n", t.sess.Symbol(a.Value), a.Type, cur)
	}
}

// run prompts until quit or EOF, keeping the history in the config directory.
func (t *locateTerm) run() error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCompleter(func(input string) (c []string) {
		for _, cmd := range locateCmds {
			for _, alias := range cmd.aliases {
				if strings.HasPrefix(alias, strings.ToLower(input)) {
					c = append(c, alias)
				}
			}
		}
		return
	})

	historyPath, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Fprintf(t.out, "Unable to load history file: %v.\n", err)
	} else if f, err := os.Open(historyPath); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	fmt.Fprintln(t.out, "Type a value to search for it, 'help' for the list of commands.")

	for {
		input, err := line.Prompt("(locate) ")
		if err == io.EOF || errors.Is(err, liner.ErrPromptAborted) {
			fmt.Fprintln(t.out, "exit")
			break
		}
		if err != nil {
			return fmt.Errorf("prompt for input failed: %w", err)
		}
		if input = strings.TrimSpace(input); input != "" {
			line.AppendHistory(input)
		}

		if err := t.exec(input); err != nil {
			if errors.Is(err, errQuit) {
				break
			}
			fmt.Fprintf(t.out, "Command failed: %s\n", err)
		}
	}

	if historyPath != "" {
		if err := os.MkdirAll(filepath.Dir(historyPath), 0700); err == nil {
			if f, err := os.Create(historyPath); err == nil {
				line.WriteHistory(f)
				f.Close()
			}
		}
	}
	return nil
}

func locateCommand() *cobra.Command {
	var (
		typeTag string
		start   string
		end     string
	)

	cmd := &cobra.Command{
		Use:   "locate",
		Short: "Interactively narrow down the address of a changing value.",
		Long: `Interactively narrow down the address of a changing value.

Type the value the target currently shows. Every numeric type is probed unless --type
fixes one. Change the value in the target, type the new value and repeat until few
candidates are left; 'diff' shows which candidates changed and 'set' writes them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []locator.Option
			if typeTag != "" {
				t, err := codec.Lookup(typeTag)
				if err != nil {
					return err
				}
				opts = append(opts, locator.WithType(t))
			}
			if start != "" || end != "" {
				f := scanFlags{start: start, end: end}
				s, e, err := f.bounds()
				if err != nil {
					return err
				}
				opts = append(opts, locator.WithRange(s, e))
			}

			return withSession(func(sess *session.Session) error {
				t, err := newLocateTerm(sess, cmd.OutOrStdout(), opts...)
				if err != nil {
					return err
				}
				return t.run()
			})
		},
	}
	cmd.Flags().StringVarP(&typeTag, "type", "t", "", "Probe only this numeric type.")
	cmd.Flags().StringVar(&start, "start", "", "Lowest address to scan.")
	cmd.Flags().StringVar(&end, "end", "", "Address to stop scanning at.")
	return cmd
}
