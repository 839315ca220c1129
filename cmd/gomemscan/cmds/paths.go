package cmds

import (
	"fmt"

	"gomemscan/search"
	"gomemscan/session"

	"github.com/spf13/cobra"
)

func pathsCommand() *cobra.Command {
	var (
		typeTag    string
		value      string
		needle     string
		depth      int
		structSize uint
		align      uint
		maxResults int
	)

	cmd := &cobra.Command{
		Use:   "paths <base>",
		Short: "Find pointer paths from a base address to a value.",
		Long: `Find pointer paths from a base address to a value.

Every aligned word inside the first --struct-size bytes of base is compared against the
target. Words that point into readable memory are followed, up to --depth levels. A path
such as [+0x10 -> +0x24] means: read the pointer at base+0x10, the value is at that
pointer plus 0x24.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			if (value == "") == (needle == "") {
				return fmt.Errorf("give exactly one of --value or --bytes")
			}

			return withSession(func(sess *session.Session) error {
				opts := []search.Option{
					search.WithMaxDepth(depth),
					search.WithMaxStructSize(structSize),
					search.WithMinAlignment(align),
					search.WithMaxResults(maxResults),
				}
				if value != "" {
					t, err := lookupType(sess, typeTag)
					if err != nil {
						return err
					}
					values, err := parseValues(value)
					if err != nil {
						return err
					}
					opts = append(opts, search.WithValue(t, values[0]))
				} else {
					data, err := parseHexBytes(needle)
					if err != nil {
						return err
					}
					opts = append(opts, search.WithBytes(data))
				}

				results, err := sess.PointerPaths(base, opts...)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				for _, r := range results {
					fmt.Fprintf(out, "%s %s\n", r.String(), sess.Symbol(r.Address))
				}
				fmt.Fprintf(out, "%d paths\n", len(results))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&typeTag, "type", "t", "", "Value type for --value.")
	cmd.Flags().StringVar(&value, "value", "", "Value to look for.")
	cmd.Flags().StringVar(&needle, "bytes", "", "Hex bytes to look for.")
	cmd.Flags().IntVar(&depth, "depth", 3, "Maximum number of pointers to follow.")
	cmd.Flags().UintVar(&structSize, "struct-size", 256, "Bytes scanned behind base and behind every followed pointer.")
	cmd.Flags().UintVar(&align, "align", 4, "Alignment of the words compared and followed.")
	cmd.Flags().IntVar(&maxResults, "max-results", 100, "Stop after this many paths, 0 for no limit.")
	return cmd
}
