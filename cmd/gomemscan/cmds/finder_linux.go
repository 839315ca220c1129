//go:build linux

package cmds

import "gomemscan/process_linux"

func hostFinder() (finder, error) {
	return process_linux.NewProcessFinder(), nil
}
