package process

// ProcessID represents a unique identifier for a process
type ProcessID int

// ProcessState represents the state of a process
type ProcessState string

const (
	ProcessRunning  ProcessState = "R" // Running
	ProcessSleeping ProcessState = "S" // Sleeping in an interruptible wait
	ProcessWaiting  ProcessState = "D" // Waiting in uninterruptible disk sleep
	ProcessZombie   ProcessState = "Z" // Zombie
	ProcessStopped  ProcessState = "T" // Stopped (on a signal)
)

// ProcessInfo contains basic information about a process
type ProcessInfo struct {
	PID   ProcessID    // Process ID
	PPID  ProcessID    // Parent Process ID
	Name  string       // Process name
	Exe   string       // Path to the executable
	State ProcessState // Process state, when the platform reports one
}

// ModuleInfo describes one loaded module of the target.
type ModuleInfo struct {
	Name string
	Path string
	Base ProcessMemoryAddress
	Size ProcessMemorySize
}

// End returns the first address past the module image.
func (m ModuleInfo) End() ProcessMemoryAddress {
	return m.Base + ProcessMemoryAddress(m.Size)
}

func (m ModuleInfo) Contains(addr ProcessMemoryAddress) bool {
	return addr >= m.Base && addr < m.End()
}
