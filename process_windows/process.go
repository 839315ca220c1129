//go:build windows

package process_windows

import (
	"fmt"
	"sync"
	"unsafe"

	"gomemscan/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/windows"
)

var (
	modkernel32       = windows.NewLazySystemDLL("kernel32.dll")
	procGetSystemInfo = modkernel32.NewProc("GetSystemInfo")
)

const (
	processAccess = windows.PROCESS_VM_READ | windows.PROCESS_VM_WRITE | windows.PROCESS_VM_OPERATION |
		windows.PROCESS_QUERY_INFORMATION

	maxWow64Address = 0x7FFEFFFF
)

// systemInfo mirrors SYSTEM_INFO.
type systemInfo struct {
	ProcessorArchitecture     uint16
	Reserved                  uint16
	PageSize                  uint32
	MinimumApplicationAddress uintptr
	MaximumApplicationAddress uintptr
	ActiveProcessorMask       uintptr
	NumberOfProcessors        uint32
	ProcessorType             uint32
	AllocationGranularity     uint32
	ProcessorLevel            uint16
	ProcessorRevision         uint16
}

func getSystemInfo() systemInfo {
	var si systemInfo
	procGetSystemInfo.Call(uintptr(unsafe.Pointer(&si)))
	return si
}

// WindowsProcess implements the process.Process interface for Windows systems
type WindowsProcess struct {
	pid     process.ProcessID
	handle  windows.Handle
	log     *logger.Logger
	minAddr process.ProcessMemoryAddress
	maxAddr process.ProcessMemoryAddress
	mu      sync.Mutex
}

// New creates a WindowsProcess that is not attached to anything yet
func New() *WindowsProcess {
	return &WindowsProcess{
		log: logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open")),
	}
}

// NewWithPID creates a new WindowsProcess instance and opens it with the given PID
func NewWithPID(pid process.ProcessID) (*WindowsProcess, error) {
	p := New()
	if err := p.Open(pid); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *WindowsProcess) Open(pid process.ProcessID) error {
	handle, err := windows.OpenProcess(processAccess, false, uint32(pid))
	if err != nil {
		if err == windows.ERROR_ACCESS_DENIED {
			return fmt.Errorf("OpenProcess %d: %w", pid, process.ErrPermissionDenied)
		}
		if err == windows.ERROR_INVALID_PARAMETER {
			return fmt.Errorf("OpenProcess %d: %w", pid, process.ErrNoSuchTarget)
		}
		return fmt.Errorf("OpenProcess failed: %w", err)
	}

	si := getSystemInfo()
	minAddr := process.ProcessMemoryAddress(si.MinimumApplicationAddress)
	maxAddr := process.ProcessMemoryAddress(si.MaximumApplicationAddress)

	var wow64 bool
	if err := windows.IsWow64Process(handle, &wow64); err == nil && wow64 {
		maxAddr = min(maxAddr, maxWow64Address)
	}

	p.mu.Lock()
	p.pid = pid
	p.handle = handle
	p.minAddr = minAddr
	p.maxAddr = maxAddr
	p.log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", pid)))
	p.mu.Unlock()

	p.log.Infoln("Process opened")
	return nil
}

func (p *WindowsProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle == 0 {
		return nil
	}

	err := windows.CloseHandle(p.handle)
	p.handle = 0
	p.pid = 0
	p.log.Infoln("Process closed")
	p.log = logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open"))

	if err != nil {
		return fmt.Errorf("CloseHandle failed: %w", err)
	}
	return nil
}

func (p *WindowsProcess) GetPID() process.ProcessID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *WindowsProcess) IsOpen() bool {
	_, ok := p.openHandle()
	return ok
}

func (p *WindowsProcess) openHandle() (windows.Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle, p.handle != 0
}

func (p *WindowsProcess) AddressBounds() (process.ProcessMemoryAddress, process.ProcessMemoryAddress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.minAddr, p.maxAddr
}

// UpdateMemoryMap has nothing to cache: VirtualQueryEx always sees the live map.
func (p *WindowsProcess) UpdateMemoryMap() error {
	if !p.IsOpen() {
		return process.ErrProcessNotOpen
	}
	return nil
}
