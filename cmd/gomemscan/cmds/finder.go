package cmds

import "gomemscan/process"

// finder lists and opens live processes.
type finder interface {
	process.ProcessFinder
	process.ProcessOpener
}

// newFinder returns the finder of the host OS. Tests replace it.
var newFinder = hostFinder
