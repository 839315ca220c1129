//go:build linux

package process_linux

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gomemscan/process"
)

// LinuxProcessFinder implements process.ProcessFinder and process.ProcessOpener over /proc
type LinuxProcessFinder struct {
	root string
}

// NewProcessFinder creates a new LinuxProcessFinder
func NewProcessFinder() *LinuxProcessFinder {
	return &LinuxProcessFinder{root: "/proc"}
}

// FindProcessByPID finds a process by its PID
func (f *LinuxProcessFinder) FindProcessByPID(pid process.ProcessID) (*process.ProcessInfo, error) {
	procPath := filepath.Join(f.root, strconv.Itoa(int(pid)))
	if _, err := os.Stat(procPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: process with PID %d does not exist", process.ErrNoSuchTarget, pid)
	}
	return f.processInfo(pid)
}

// FindProcessByName returns the processes whose comm or executable basename equals
// name, like pidof. The calling process is never included.
func (f *LinuxProcessFinder) FindProcessByName(name string) ([]process.ProcessInfo, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty process name", process.ErrNoSuchTarget)
	}

	all, err := f.FindAllProcesses()
	if err != nil {
		return nil, err
	}

	self := process.ProcessID(os.Getpid())
	var out []process.ProcessInfo
	for _, info := range all {
		if info.PID == self {
			continue
		}
		if info.Name == name || (info.Exe != "" && filepath.Base(info.Exe) == name) {
			out = append(out, info)
		}
	}
	return out, nil
}

// FindAllProcesses returns information about all running processes, ordered by PID
func (f *LinuxProcessFinder) FindAllProcesses() ([]process.ProcessInfo, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.root, err)
	}

	var results []process.ProcessInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid <= 0 {
			continue
		}

		info, err := f.processInfo(process.ProcessID(pid))
		if err != nil {
			// Process may have terminated while we were reading
			continue
		}
		results = append(results, *info)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].PID < results[j].PID })
	return results, nil
}

func (f *LinuxProcessFinder) processInfo(pid process.ProcessID) (*process.ProcessInfo, error) {
	procPath := filepath.Join(f.root, strconv.Itoa(int(pid)))

	nameBytes, err := os.ReadFile(filepath.Join(procPath, "comm"))
	if err != nil {
		return nil, fmt.Errorf("failed to read process name: %w", err)
	}

	// Kernel threads and zombies have no exe.
	exe, _ := os.Readlink(filepath.Join(procPath, "exe"))

	info := &process.ProcessInfo{
		PID:  pid,
		Name: strings.TrimSpace(string(nameBytes)),
		Exe:  exe,
	}

	statusBytes, err := os.ReadFile(filepath.Join(procPath, "status"))
	if err != nil {
		return info, nil
	}
	for _, line := range strings.Split(string(statusBytes), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.TrimSpace(key) {
		case "PPid":
			if ppid, err := strconv.Atoi(value); err == nil {
				info.PPID = process.ProcessID(ppid)
			}
		case "State":
			if len(value) > 0 {
				info.State = process.ProcessState(value[0:1])
			}
		}
	}
	return info, nil
}

// OpenProcessByPID opens the process with the given PID
func (f *LinuxProcessFinder) OpenProcessByPID(pid process.ProcessID) (process.Process, error) {
	p, err := NewWithPID(pid)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// OpenProcessByName opens the only process called name. Zero or several matches
// are an error.
func (f *LinuxProcessFinder) OpenProcessByName(name string) (process.Process, error) {
	candidates, err := f.FindProcessByName(name)
	if err != nil {
		return nil, err
	}

	target, err := process.SelectUnique(name, candidates)
	if err != nil {
		return nil, err
	}
	return f.OpenProcessByPID(target.PID)
}
