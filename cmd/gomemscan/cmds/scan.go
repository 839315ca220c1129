package cmds

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"sort"
	"strings"

	"gomemscan/process"
	"gomemscan/scanner"
	"gomemscan/session"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var errScanMode = errors.New("give exactly one of --value, --aob, --regex, --utf16, --float, --group or --address")

type scanFlags struct {
	typeTag string
	value   string
	aob     string
	regex   []string
	utf16   string
	float   float64
	group   string
	address string

	groups  bool
	start   string
	end     string
	limit   int
	replace string
}

func (f *scanFlags) modes(cmd *cobra.Command) []string {
	return lo.Filter([]string{"value", "aob", "regex", "utf16", "float", "group", "address"}, func(name string, _ int) bool {
		return cmd.Flags().Changed(name)
	})
}

func scanCommand() *cobra.Command {
	f := &scanFlags{}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Search the target's memory.",
		Long: `Search the target's memory.

Exactly one search mode is required:

	--value 1337        typed value (or a comma separated run of values) of --type
	--aob "de ad ?? ef" byte pattern, ?? is a wildcard
	--regex expr        regular expression over raw bytes, repeatable
	--utf16 text        UTF-16LE encoded text, ignoring ASCII case
	--float 1.5         float32 whose integer part equals that of the value
	--group 1.5,2.5     consecutive float32 values sharing the high bytes of each
	--address 7ff000    pointer-width little endian encoding of an address

With --replace the matches are overwritten: by the UTF-16 text for --utf16 and by a hex
byte list otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(f.modes(cmd)) != 1 {
				return errScanMode
			}

			return withSession(func(sess *session.Session) error {
				var opts []scanner.Option
				if f.start != "" || f.end != "" {
					start, end, err := f.bounds()
					if err != nil {
						return err
					}
					opts = append(opts, scanner.WithRange(start, end))
				}

				if cmd.Flags().Changed("replace") {
					return f.runReplace(cmd.OutOrStdout(), sess)
				}

				seq, err := f.search(sess, opts)
				if err != nil {
					return err
				}
				return printMatches(cmd.OutOrStdout(), sess, seq, f.limit, f.groups)
			})
		},
	}

	cmd.Flags().StringVarP(&f.typeTag, "type", "t", "", "Value type for --value.")
	cmd.Flags().StringVar(&f.value, "value", "", "Search for a typed value, or a comma separated run of values.")
	cmd.Flags().StringVar(&f.aob, "aob", "", "Search for a byte pattern with ?? wildcards.")
	cmd.Flags().StringArrayVar(&f.regex, "regex", nil, "Search for a regular expression.")
	cmd.Flags().StringVar(&f.utf16, "utf16", "", "Search for UTF-16LE text.")
	cmd.Flags().Float64Var(&f.float, "float", 0, "Search for a float32 with the same integer part.")
	cmd.Flags().StringVar(&f.group, "group", "", "Search for consecutive float32 values.")
	cmd.Flags().StringVar(&f.address, "address", "", "Search for pointers to an address.")
	cmd.Flags().BoolVar(&f.groups, "groups", false, "Print regular expression capture groups.")
	cmd.Flags().StringVar(&f.start, "start", "", "Lowest address to scan.")
	cmd.Flags().StringVar(&f.end, "end", "", "Address to stop scanning at.")
	cmd.Flags().IntVar(&f.limit, "limit", 100, "Stop after this many matches, 0 for no limit.")
	cmd.Flags().StringVar(&f.replace, "replace", "", "Overwrite every match.")
	return cmd
}

func (f *scanFlags) bounds() (start, end process.ProcessMemoryAddress, err error) {
	if f.start != "" {
		if start, err = parseAddress(f.start); err != nil {
			return 0, 0, err
		}
	}
	if f.end != "" {
		if end, err = parseAddress(f.end); err != nil {
			return 0, 0, err
		}
	}
	return start, end, nil
}

func (f *scanFlags) matcher(sess *session.Session) (scanner.Matcher, error) {
	switch {
	case f.value != "":
		t, err := lookupType(sess, f.typeTag)
		if err != nil {
			return nil, err
		}
		values, err := parseValues(f.value)
		if err != nil {
			return nil, err
		}
		return scanner.Literal(t, values...)
	case f.aob != "":
		aob, err := process.ParseAOB(f.aob)
		if err != nil {
			return nil, err
		}
		return scanner.Masked(aob)
	case len(f.regex) > 0:
		patterns := make([]scanner.LabeledPattern, len(f.regex))
		for i, expr := range f.regex {
			p, err := scanner.Pattern(fmt.Sprintf("re%d", i), expr)
			if err != nil {
				return nil, err
			}
			patterns[i] = p
		}
		m, err := scanner.Regexp(patterns...)
		if err != nil {
			return nil, err
		}
		if f.groups {
			m = m.WithGroups()
		}
		return m, nil
	case f.utf16 != "":
		return scanner.UTF16Text(f.utf16)
	case f.group != "":
		values, err := parseValues(f.group)
		if err != nil {
			return nil, err
		}
		return scanner.FloatGroup(values...)
	case f.address != "":
		addr, err := parseAddress(f.address)
		if err != nil {
			return nil, err
		}
		return scanner.AddressBytes(addr, process.PointerWidth(sess.Process()))
	}
	return scanner.TolerantFloat(f.float), nil
}

func (f *scanFlags) search(sess *session.Session, opts []scanner.Option) (iter.Seq2[scanner.Match, error], error) {
	m, err := f.matcher(sess)
	if err != nil {
		return nil, err
	}
	return sess.Search(m, opts...), nil
}

func (f *scanFlags) runReplace(out io.Writer, sess *session.Session) error {
	var (
		ok  bool
		err error
	)
	if f.utf16 != "" {
		ok, err = sess.UTF16Replace(f.utf16, f.replace)
	} else {
		var (
			m    scanner.Matcher
			data []byte
		)
		if m, err = f.matcher(sess); err != nil {
			return err
		}
		if data, err = parseHexBytes(f.replace); err != nil {
			return err
		}
		ok, err = sess.Replace(m, data)
	}
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("some matches could not be overwritten")
	}
	fmt.Fprintln(out, "replaced every match")
	return nil
}

func printMatches(out io.Writer, sess *session.Session, seq iter.Seq2[scanner.Match, error], limit int, groups bool) error {
	n := 0
	for m, err := range seq {
		if err != nil {
			return err
		}

		line := []string{m.Address.String()}
		if sym := sess.Symbol(m.Address.Value); sym != m.Address.String() {
			line = append(line, sym)
		}
		if m.Label != "" {
			line = append(line, m.Label)
		}
		if groups {
			line = append(line, lo.Map(m.Groups, func(g string, _ int) string {
				return fmt.Sprintf("%q", g)
			})...)
			keys := lo.Keys(m.Named)
			sort.Strings(keys)
			for _, k := range keys {
				line = append(line, fmt.Sprintf("%s=%q", k, m.Named[k]))
			}
		}
		fmt.Fprintln(out, strings.Join(line, " "))

		n++
		if limit > 0 && n >= limit {
			fmt.Fprintf(out, "stopped after %d matches\n", n)
			return nil
		}
	}
	fmt.Fprintf(out, "%d matches\n", n)
	return nil
}
