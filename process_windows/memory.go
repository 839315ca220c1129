//go:build windows

package process_windows

import (
	"fmt"
	"unsafe"

	"gomemscan/process"

	"golang.org/x/sys/windows"
)

// QueryRegion returns the region containing addr, or the free gap starting at it.
func (p *WindowsProcess) QueryRegion(addr process.ProcessMemoryAddress) (process.MemoryRegion, error) {
	handle, ok := p.openHandle()
	if !ok {
		return process.MemoryRegion{}, process.ErrProcessNotOpen
	}

	var mbi windows.MemoryBasicInformation
	if err := windows.VirtualQueryEx(handle, uintptr(addr), &mbi, unsafe.Sizeof(mbi)); err != nil {
		// Past the last region VirtualQueryEx fails with ERROR_INVALID_PARAMETER.
		if err == windows.ERROR_INVALID_PARAMETER {
			return process.MemoryRegion{}, process.ErrNoMoreRegions
		}
		return process.MemoryRegion{}, &process.QueryError{Address: addr, Err: err}
	}

	return process.MemoryRegion{
		Base:    process.ProcessMemoryAddress(mbi.BaseAddress),
		Size:    process.ProcessMemorySize(mbi.RegionSize),
		Protect: process.Protection(mbi.Protect),
		State:   process.RegionState(mbi.State),
	}, nil
}

func transferError(op string, err error) error {
	switch err {
	case windows.ERROR_PARTIAL_COPY, windows.ERROR_NOACCESS:
		return process.ErrPartialTransfer
	case windows.ERROR_ACCESS_DENIED:
		return fmt.Errorf("%s: %w", op, process.ErrPermissionDenied)
	case windows.ERROR_INVALID_HANDLE:
		return fmt.Errorf("%s: %w", op, process.ErrProcessNotOpen)
	}
	return fmt.Errorf("%s failed: %w", op, err)
}

// ReadMemoryAt reads into buf from addr. ERROR_PARTIAL_COPY with some bytes read is
// reported as a short read.
func (p *WindowsProcess) ReadMemoryAt(buf []byte, addr process.ProcessMemoryAddress) (int, error) {
	handle, ok := p.openHandle()
	if !ok {
		return 0, process.ErrProcessNotOpen
	}
	if len(buf) == 0 {
		return 0, nil
	}

	var bytesRead uintptr
	err := windows.ReadProcessMemory(handle, uintptr(addr), &buf[0], uintptr(len(buf)), &bytesRead)
	if err != nil {
		if err == windows.ERROR_PARTIAL_COPY && bytesRead > 0 {
			return int(bytesRead), nil
		}
		return 0, transferError("ReadProcessMemory", err)
	}
	return int(bytesRead), nil
}

func (p *WindowsProcess) WriteMemoryAt(addr process.ProcessMemoryAddress, data []byte) (int, error) {
	handle, ok := p.openHandle()
	if !ok {
		return 0, process.ErrProcessNotOpen
	}
	if len(data) == 0 {
		return 0, nil
	}

	var written uintptr
	err := windows.WriteProcessMemory(handle, uintptr(addr), &data[0], uintptr(len(data)), &written)
	if err != nil {
		if err == windows.ERROR_PARTIAL_COPY && written > 0 {
			return int(written), nil
		}
		return 0, transferError("WriteProcessMemory", err)
	}
	return int(written), nil
}

// ProtectMemory changes the protection of the pages covering the range and returns
// the protection of the first page before the change.
func (p *WindowsProcess) ProtectMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize, prot process.Protection) (process.Protection, error) {
	handle, ok := p.openHandle()
	if !ok {
		return 0, process.ErrProcessNotOpen
	}

	var old uint32
	if err := windows.VirtualProtectEx(handle, uintptr(addr), uintptr(size), uint32(prot), &old); err != nil {
		return 0, fmt.Errorf("VirtualProtectEx at %s: %w", addr.ToString(), err)
	}
	return process.Protection(old), nil
}

// Modules lists the loaded modules through a toolhelp snapshot.
func (p *WindowsProcess) Modules() ([]process.ModuleInfo, error) {
	pid := p.GetPID()
	if pid == 0 {
		return nil, process.ErrProcessNotOpen
	}

	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, uint32(pid))
	if err != nil {
		return nil, fmt.Errorf("CreateToolhelp32Snapshot failed: %w", err)
	}
	defer windows.CloseHandle(snapshot)

	var me32 windows.ModuleEntry32
	me32.Size = uint32(unsafe.Sizeof(me32))

	var modules []process.ModuleInfo
	for err := windows.Module32First(snapshot, &me32); err == nil; err = windows.Module32Next(snapshot, &me32) {
		modules = append(modules, process.ModuleInfo{
			Name: windows.UTF16ToString(me32.Module[:]),
			Path: windows.UTF16ToString(me32.ExePath[:]),
			Base: process.ProcessMemoryAddress(me32.ModBaseAddr),
			Size: process.ProcessMemorySize(me32.ModBaseSize),
		})
	}
	return modules, nil
}
