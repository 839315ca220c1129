package cmds

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gomemscan/codec"
	"gomemscan/config"
	"gomemscan/hexdump"
	"gomemscan/process"
	"gomemscan/process_blob"
	"gomemscan/session"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var (
	// pid selects the target by process id.
	pid int
	// name selects the target by executable name; it must match exactly one process.
	name string
	// configPath overrides ~/.gomemscan/config.yml.
	configPath string
	// dumpDir opens a dump written by `dump save` instead of a live process.
	dumpDir string
	// noColor disables ANSI escapes in tables and dumps.
	noColor bool

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

var errNoTarget = errors.New("no target: use --pid, --name or --dump")

const gomemscanLongDesc = `gomemscan reads, writes and searches the memory of another process.

A target is selected with --pid or --name. A dump written by 'dump save' can stand in
for a live process with --dump, which makes every read-only command work offline.`

// New returns an initialized command tree.
func New() *cobra.Command {
	rootCommand = &cobra.Command{
		Use:          "gomemscan",
		Short:        "Inspect and search the memory of a running process.",
		Long:         gomemscanLongDesc,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			conf, err = config.LoadConfig(configPath)
			return err
		},
	}

	rootCommand.PersistentFlags().IntVarP(&pid, "pid", "p", 0, "Process id of the target.")
	rootCommand.PersistentFlags().StringVarP(&name, "name", "n", "", "Executable name of the target.")
	rootCommand.PersistentFlags().StringVar(&configPath, "config", "", "Config file, defaults to ~/.gomemscan/config.yml.")
	rootCommand.PersistentFlags().StringVar(&dumpDir, "dump", "", "Use a saved dump directory as the target.")
	rootCommand.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output.")

	rootCommand.AddCommand(
		psCommand(),
		regionsCommand(),
		readCommand(),
		writeCommand(),
		scanCommand(),
		locateCommand(),
		symbolCommand(),
		disasmCommand(),
		pathsCommand(),
		dumpCommand(),
	)
	return rootCommand
}

// openTarget opens the process named by the global flags.
func openTarget() (process.Process, error) {
	if dumpDir != "" {
		img, err := process_blob.Load(dumpDir)
		if err != nil {
			return nil, err
		}
		return img, nil
	}
	if pid == 0 && name == "" {
		return nil, errNoTarget
	}

	f, err := newFinder()
	if err != nil {
		return nil, err
	}
	if pid != 0 {
		return f.OpenProcessByPID(process.ProcessID(pid))
	}
	return f.OpenProcessByName(name)
}

// openSession opens the target and wraps it in a session configured from conf.
func openSession() (*session.Session, error) {
	p, err := openTarget()
	if err != nil {
		return nil, err
	}

	sess, err := session.New(p, session.WithConfig(conf))
	if err != nil {
		p.Close()
		return nil, err
	}
	return sess, nil
}

// withSession runs fn against a freshly opened session and closes it afterwards.
func withSession(fn func(sess *session.Session) error) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()
	return fn(sess)
}

// parseAddress parses a hex address with an optional 0x prefix.
func parseAddress(s string) (process.ProcessMemoryAddress, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return process.ProcessMemoryAddress(v), nil
}

// parseValues parses a comma separated list of numbers.
func parseValues(s string) ([]float64, error) {
	parts := lo.Filter(strings.Split(s, ","), func(p string, _ int) bool {
		return strings.TrimSpace(p) != ""
	})
	if len(parts) == 0 {
		return nil, fmt.Errorf("no value given")
	}

	values := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", p, err)
		}
		values[i] = v
	}
	return values, nil
}

// parseHexBytes parses "de ad be ef" into bytes. Wildcards are not allowed.
func parseHexBytes(s string) ([]byte, error) {
	aob, err := process.ParseAOB(s)
	if err != nil {
		return nil, err
	}
	if !lo.EveryBy(aob.Mask, func(b byte) bool { return b == 0xFF }) {
		return nil, fmt.Errorf("wildcards are not allowed in %q", s)
	}
	return aob.Pattern, nil
}

// lookupType resolves a --type flag; empty gives the session default.
func lookupType(sess *session.Session, tag string) (codec.ScalarType, error) {
	if tag == "" {
		return sess.Address(0, "").Type, nil
	}
	return codec.Lookup(tag)
}

// formatValue prints integers without a fraction and floats in their shortest form.
func formatValue(t codec.ScalarType, v float64) string {
	switch t {
	case codec.Float, codec.Double:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case codec.UShort, codec.UInt, codec.ULong:
		return strconv.FormatUint(uint64(v), 10)
	}
	return strconv.FormatInt(int64(v), 10)
}

func dumpOptions() hexdump.HexDumpOptions {
	opts := hexdump.DefaultOptions()
	opts.NoColor = noColor
	return opts
}
