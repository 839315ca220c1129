package process

import "fmt"

// ProcessFinder defines operations for discovering processes
type ProcessFinder interface {
	// FindProcessByPID finds a process by its PID
	FindProcessByPID(pid ProcessID) (*ProcessInfo, error)

	// FindProcessByName finds processes by their name (exact match)
	FindProcessByName(name string) ([]ProcessInfo, error)

	// FindAllProcesses returns information about all running processes
	FindAllProcesses() ([]ProcessInfo, error)
}

// ProcessOpener opens a target by PID or by a name that must match exactly one process.
type ProcessOpener interface {
	OpenProcessByPID(pid ProcessID) (Process, error)
	OpenProcessByName(name string) (Process, error)
}

// SelectUnique returns the only candidate, or ErrNoSuchTarget / ErrAmbiguousTarget.
func SelectUnique(name string, candidates []ProcessInfo) (ProcessInfo, error) {
	switch len(candidates) {
	case 0:
		return ProcessInfo{}, fmt.Errorf("%w: no process found with name '%s'", ErrNoSuchTarget, name)
	case 1:
		return candidates[0], nil
	}

	pids := make([]ProcessID, len(candidates))
	for i, c := range candidates {
		pids[i] = c.PID
	}
	return ProcessInfo{}, fmt.Errorf("%w: name '%s' matches pids %v, select a process by pid instead", ErrAmbiguousTarget, name, pids)
}
