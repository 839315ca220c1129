package cmds

import (
	"fmt"

	"gomemscan/hexdump"
	"gomemscan/process"
	"gomemscan/process_blob"
	"gomemscan/session"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func dumpCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Save the target's memory to a directory, or inspect a saved dump.",
		Long: `Save the target's memory to a directory, or inspect a saved dump.

A saved dump can be used in place of a live process by passing its directory to --dump.`,
	}
	cmd.AddCommand(dumpSaveCommand(), dumpLoadCommand())
	return cmd
}

func dumpSaveCommand() *cobra.Command {
	var (
		all     bool
		maxSize uint64
	)

	cmd := &cobra.Command{
		Use:   "save <dir>",
		Short: "Save the committed regions of the target.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(sess *session.Session) error {
				opts := process_blob.SaveOptions{
					Name:          targetName(sess.Process()),
					Mask:          process.DefaultScanProtection,
					MaxRegionSize: process.ProcessMemorySize(maxSize),
				}
				if all {
					opts.Mask = 0
				}

				stats, err := process_blob.Save(sess.Process(), args[0], opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved %d regions to %s (%d too large, %d unreadable, %d write errors)\n",
					stats.Saved, args[0], stats.TooLarge, stats.ReadError, stats.WriteError)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Save every committed region, not only writable and read-only data.")
	cmd.Flags().Uint64Var(&maxSize, "max-region-size", process_blob.DefaultMaxRegionSize, "Skip regions larger than this many bytes.")
	return cmd
}

func dumpLoadCommand() *cobra.Command {
	var (
		addrStr string
		size    uint
	)

	cmd := &cobra.Command{
		Use:   "load <dir>",
		Short: "Summarize a saved dump, or hexdump part of it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := process_blob.Load(args[0])
			if err != nil {
				return err
			}
			defer img.Close()

			regions, err := process.CollectRegions(img, 0, 0, 0)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Loaded dump from %s\n", args[0])
			fmt.Fprintf(out, "Process Name: %s\n", img.Name())
			fmt.Fprintf(out, "PID: %d\n", img.GetPID())
			fmt.Fprintf(out, "Memory Regions: %d\n", len(regions))

			if addrStr == "" {
				fmt.Fprintln(out, "\nMemory Map:")
				for _, r := range regions {
					fmt.Fprintf(out, "  %016x - %016x (%s) %s\n", uint64(r.Base), uint64(r.End()), r.Protect, humanize.IBytes(uint64(r.Size)))
				}
				return nil
			}

			addr, err := parseAddress(addrStr)
			if err != nil {
				return err
			}
			data, err := process.ReadMemory(img, addr, process.ProcessMemorySize(size))
			if err != nil {
				return err
			}

			opts := dumpOptions()
			opts.StartOffset = uint64(addr)
			opts.Regions = regions
			fmt.Fprintf(out, "\nHexdump at 0x%x (%d bytes):\n", uint64(addr), len(data))
			hexdump.DumpToWriter(out, data, opts)
			return nil
		},
	}
	cmd.Flags().StringVar(&addrStr, "addr", "", "Address to hexdump (hex).")
	cmd.Flags().UintVar(&size, "size", 256, "Number of bytes to hexdump.")
	return cmd
}

// targetName names the dump: the dump's own name, the --name flag, or the name the
// finder reports for the pid.
func targetName(p process.Process) string {
	if img, ok := p.(*process_blob.Image); ok {
		return img.Name()
	}
	if name != "" {
		return name
	}
	if f, err := newFinder(); err == nil {
		if info, err := f.FindProcessByPID(p.GetPID()); err == nil {
			return info.Name
		}
	}
	return ""
}
