//go:build !linux && !windows

package cmds

import (
	"fmt"
	"runtime"
)

func hostFinder() (finder, error) {
	return nil, fmt.Errorf("live processes are not supported on %s, use --dump", runtime.GOOS)
}
