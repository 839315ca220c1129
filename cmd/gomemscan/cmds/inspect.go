package cmds

import (
	"fmt"

	"gomemscan/codec"
	"gomemscan/pod"
	"gomemscan/process"
	"gomemscan/session"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func psCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ps [name]",
		Short: "List processes, optionally only those matching name.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := newFinder()
			if err != nil {
				return err
			}

			var procs []process.ProcessInfo
			if len(args) == 1 {
				procs, err = f.FindProcessByName(args[0])
			} else {
				procs, err = f.FindAllProcesses()
			}
			if err != nil {
				return err
			}

			t := newTable(!noColor,
				column{Header: "PID", Color: coloransi.Cyan},
				column{Header: "PPID"},
				column{Header: "STATE"},
				column{Header: "NAME", Color: coloransi.Green},
				column{Header: "EXE"},
			)
			for _, p := range procs {
				t.addRow(fmt.Sprint(p.PID), fmt.Sprint(p.PPID), string(p.State), p.Name, p.Exe)
			}
			return t.render(cmd.OutOrStdout())
		},
	}
}

func regionsCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "regions",
		Short: "List the committed memory regions of the target.",
		Long: `List the committed memory regions of the target.

Without --all only the regions a scan would visit are listed, which by default are the
readable and writable pages. The protection filter comes from the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(sess *session.Session) error {
				var (
					regions []process.MemoryRegion
					err     error
				)
				if all {
					regions, err = process.CollectRegions(sess.Process(), 0, 0, 0)
				} else {
					regions, err = sess.Regions()
				}
				if err != nil {
					return err
				}

				t := newTable(!noColor,
					column{Header: "START", Color: coloransi.Cyan},
					column{Header: "END", Color: coloransi.Cyan},
					column{Header: "SIZE"},
					column{Header: "PERMS", Color: coloransi.Yellow},
					column{Header: "PATH"},
				)
				for _, r := range regions {
					t.addRow(r.Base.ToString(), r.End().ToString(), humanize.IBytes(uint64(r.Size)), r.Protect.String(), r.Path)
				}
				if err := t.render(cmd.OutOrStdout()); err != nil {
					return err
				}

				total := lo.SumBy(regions, func(r process.MemoryRegion) uint64 { return uint64(r.Size) })
				fmt.Fprintf(cmd.OutOrStdout(), "%d regions, %s\n", len(regions), humanize.IBytes(total))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "List every committed region regardless of protection.")
	return cmd
}

func readCommand() *cobra.Command {
	var (
		typeTag  string
		count    int
		size     uint
		pointers int
	)

	cmd := &cobra.Command{
		Use:   "read <address>",
		Short: "Read typed values, a string or raw bytes at an address.",
		Long: `Read typed values, a string or raw bytes at an address.

The address is hexadecimal. Numeric types print --count consecutive values, the string
type prints the NUL terminated text and the bytes type prints a hex dump of --size bytes.
With --pointers the address is read as a table of pointers and only the entries that
point into readable memory are printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}

			return withSession(func(sess *session.Session) error {
				out := cmd.OutOrStdout()
				if pointers > 0 {
					ptrs, err := pod.ReadPointerList(sess.Process(), addr, pointers)
					if err != nil {
						return err
					}
					for _, ptr := range ptrs {
						fmt.Fprintf(out, "%s %s\n", ptr.ToString(), sess.Symbol(ptr))
					}
					fmt.Fprintf(out, "%d of %d pointers valid\n", len(ptrs), pointers)
					return nil
				}

				t, err := lookupType(sess, typeTag)
				if err != nil {
					return err
				}

				switch t {
				case codec.Bytes:
					return sess.Dump(out, addr, process.ProcessMemorySize(size), 0, t, dumpOptions())
				case codec.String:
					s, err := sess.ReadString(sess.Address(addr, t))
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s %q\n", sess.Symbol(addr), s)
					return nil
				}

				w, err := t.Width()
				if err != nil {
					return err
				}
				a := sess.Address(addr, t)
				for i := 0; i < max(count, 1); i++ {
					v, err := sess.Read(a)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s (%s) = %s\n", sess.Symbol(a.Value), t, formatValue(t, v))
					a = a.Add(int64(w))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&typeTag, "type", "t", "", "Value type: short, ushort, int, uint, long, ulong, float, double, string or bytes.")
	cmd.Flags().IntVarP(&count, "count", "c", 1, "Number of consecutive values to read.")
	cmd.Flags().UintVarP(&size, "size", "s", 256, "Number of bytes to dump for the bytes type.")
	cmd.Flags().IntVar(&pointers, "pointers", 0, "Read this many target-width pointers and print the valid ones.")
	return cmd
}

func writeCommand() *cobra.Command {
	var typeTag string

	cmd := &cobra.Command{
		Use:   "write <address> <value>",
		Short: "Write a typed value, a string or raw bytes at an address.",
		Long: `Write a typed value, a string or raw bytes at an address.

Strings are written without a terminator. For the bytes type the value is a hex byte
list such as "90 90 c3".`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}

			return withSession(func(sess *session.Session) error {
				t, err := lookupType(sess, typeTag)
				if err != nil {
					return err
				}

				var n int
				switch t {
				case codec.String:
					n, err = sess.WriteBytes(addr, []byte(args[1]))
				case codec.Bytes:
					data, perr := parseHexBytes(args[1])
					if perr != nil {
						return perr
					}
					n, err = sess.WriteBytes(addr, data)
				default:
					values, perr := parseValues(args[1])
					if perr != nil {
						return perr
					}
					n, err = sess.Write(sess.Address(addr, t), values[0])
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes at %s\n", n, addr.ToString())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&typeTag, "type", "t", "", "Value type: short, ushort, int, uint, long, ulong, float, double, string or bytes.")
	return cmd
}

func symbolCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "symbol <address>...",
		Short: "Name addresses relative to the module that contains them.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addrs := make([]process.ProcessMemoryAddress, len(args))
			for i, arg := range args {
				addr, err := parseAddress(arg)
				if err != nil {
					return err
				}
				addrs[i] = addr
			}

			return withSession(func(sess *session.Session) error {
				for _, addr := range addrs {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", addr.ToString(), sess.Symbol(addr))
				}
				return nil
			})
		},
	}
}

func disasmCommand() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "disasm <address>",
		Short: "Disassemble x86 instructions at an address.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}

			return withSession(func(sess *session.Session) error {
				lines, err := sess.Instructions(addr, count)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), sess.Symbol(addr)+":")
				for _, l := range lines {
					fmt.Fprintln(cmd.OutOrStdout(), l.String())
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "c", 10, "Number of instructions.")
	return cmd
}
