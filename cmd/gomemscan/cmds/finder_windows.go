//go:build windows

package cmds

import "gomemscan/process_windows"

func hostFinder() (finder, error) {
	return process_windows.NewProcessFinder(), nil
}
