//go:build linux

package process_linux

import (
	"debug/elf"
	"errors"
	"fmt"
	"os"
	"sync"

	"gomemscan/process"
	"gomemscan/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

const (
	minUserAddress   = 0x10000
	maxUserAddress64 = 0x800000000000
	maxUserAddress32 = 0x100000000
)

// LinuxProcess implements the process.Process interface for Linux systems
type LinuxProcess struct {
	pid     process.ProcessID
	log     *logger.Logger
	mm      []memory_map.MemoryMapItem
	maxAddr process.ProcessMemoryAddress
	mu      sync.Mutex
}

// New creates a LinuxProcess that is not attached to anything yet
func New() *LinuxProcess {
	return &LinuxProcess{
		log: logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open")),
	}
}

// NewWithPID creates a new LinuxProcess instance and opens it with the given PID
func NewWithPID(pid process.ProcessID) (*LinuxProcess, error) {
	p := New()
	if err := p.Open(pid); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *LinuxProcess) Open(pid process.ProcessID) error {
	procPath := fmt.Sprintf("/proc/%d", pid)
	if _, err := os.Stat(procPath); os.IsNotExist(err) {
		return fmt.Errorf("%w: process with PID %d does not exist", process.ErrNoSuchTarget, pid)
	}

	p.mu.Lock()
	p.pid = pid
	p.maxAddr = addressLimit(pid)
	p.log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", pid)))
	p.mu.Unlock()

	if err := p.UpdateMemoryMap(); err != nil {
		p.Close()
		return fmt.Errorf("failed to initialize memory map: %w", err)
	}

	p.log.Infoln("Process opened")
	return nil
}

// addressLimit picks the top of the user address space from the ELF class of the
// target's executable. An unreadable executable is assumed to be 64-bit.
func addressLimit(pid process.ProcessID) process.ProcessMemoryAddress {
	f, err := elf.Open(fmt.Sprintf("/proc/%d/exe", pid))
	if err != nil {
		return maxUserAddress64
	}
	defer f.Close()

	if f.Class == elf.ELFCLASS32 {
		return maxUserAddress32
	}
	return maxUserAddress64
}

func (p *LinuxProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pid == 0 {
		return nil
	}

	p.log.Infoln("Closing process")

	p.pid = 0
	p.mm = nil
	p.log = logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open"))

	return nil
}

// GetPID returns the process ID
func (p *LinuxProcess) GetPID() process.ProcessID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *LinuxProcess) IsOpen() bool {
	return p.GetPID() != 0
}

func (p *LinuxProcess) AddressBounds() (process.ProcessMemoryAddress, process.ProcessMemoryAddress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return minUserAddress, p.maxAddr
}

func (p *LinuxProcess) UpdateMemoryMap() error {
	pid := p.GetPID()
	if pid == 0 {
		return process.ErrProcessNotOpen
	}

	mm, err := memory_map.ReadMemoryMap(int(pid))
	if err != nil {
		return fmt.Errorf("failed to read memory map: %w", err)
	}

	p.mu.Lock()
	p.mm = mm
	p.mu.Unlock()
	return nil
}

// QueryRegion answers from the map read by the last UpdateMemoryMap.
func (p *LinuxProcess) QueryRegion(addr process.ProcessMemoryAddress) (process.MemoryRegion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pid == 0 {
		return process.MemoryRegion{}, process.ErrProcessNotOpen
	}
	return memory_map.Query(uint64(addr), p.mm)
}

// MemoryMap returns a copy of the cached /proc/<pid>/maps entries.
func (p *LinuxProcess) MemoryMap() ([]memory_map.MemoryMapItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pid == 0 {
		return nil, process.ErrProcessNotOpen
	}

	result := make([]memory_map.MemoryMapItem, len(p.mm))
	copy(result, p.mm)
	return result, nil
}

// Modules groups the file-backed mappings by path.
func (p *LinuxProcess) Modules() ([]process.ModuleInfo, error) {
	mm, err := p.MemoryMap()
	if err != nil {
		return nil, err
	}
	return memory_map.Modules(mm), nil
}

var ErrProtectUnsupported = errors.New("changing protection of another process is not supported on linux")

// ProtectMemory is not available remotely without injecting code into the target.
// Writes to read-only pages go through /proc/<pid>/mem instead.
func (p *LinuxProcess) ProtectMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize, prot process.Protection) (process.Protection, error) {
	if !p.IsOpen() {
		return 0, process.ErrProcessNotOpen
	}
	return 0, ErrProtectUnsupported
}
