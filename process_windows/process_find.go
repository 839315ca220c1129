//go:build windows

package process_windows

import (
	"fmt"
	"os"
	"strings"
	"unsafe"

	"gomemscan/process"

	"golang.org/x/sys/windows"
)

// WindowsProcessFinder implements process.ProcessFinder and process.ProcessOpener
// over toolhelp process snapshots
type WindowsProcessFinder struct{}

func NewProcessFinder() *WindowsProcessFinder {
	return &WindowsProcessFinder{}
}

func (f *WindowsProcessFinder) FindAllProcesses() ([]process.ProcessInfo, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, fmt.Errorf("CreateToolhelp32Snapshot failed: %w", err)
	}
	defer windows.CloseHandle(snapshot)

	var pe windows.ProcessEntry32
	pe.Size = uint32(unsafe.Sizeof(pe))

	var out []process.ProcessInfo
	for err := windows.Process32First(snapshot, &pe); err == nil; err = windows.Process32Next(snapshot, &pe) {
		out = append(out, process.ProcessInfo{
			PID:  process.ProcessID(pe.ProcessID),
			PPID: process.ProcessID(pe.ParentProcessID),
			Name: windows.UTF16ToString(pe.ExeFile[:]),
		})
	}
	return out, nil
}

func (f *WindowsProcessFinder) FindProcessByPID(pid process.ProcessID) (*process.ProcessInfo, error) {
	all, err := f.FindAllProcesses()
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].PID == pid {
			return &all[i], nil
		}
	}
	return nil, fmt.Errorf("%w: process with PID %d does not exist", process.ErrNoSuchTarget, pid)
}

// FindProcessByName matches the executable name case-insensitively, with or without
// the .exe suffix. The calling process is never included.
func (f *WindowsProcessFinder) FindProcessByName(name string) ([]process.ProcessInfo, error) {
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
		if strings.EqualFold(info.Name, name) || strings.EqualFold(strings.TrimSuffix(strings.ToLower(info.Name), ".exe"), name) {
			out = append(out, info)
		}
	}
	return out, nil
}

func (f *WindowsProcessFinder) OpenProcessByPID(pid process.ProcessID) (process.Process, error) {
	p, err := NewWithPID(pid)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (f *WindowsProcessFinder) OpenProcessByName(name string) (process.Process, error) {
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
