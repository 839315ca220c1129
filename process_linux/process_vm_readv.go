//go:build linux

package process_linux

import (
	"fmt"
	"unsafe"

	"gomemscan/process"

	"golang.org/x/sys/unix"
)

// process_vm_readv uses the process_vm_readv syscall to read memory from another process
func process_vm_readv(pid process.ProcessID, localBuf []byte, remoteAddr process.ProcessMemoryAddress) (int, unix.Errno) {
	localIov := unix.Iovec{
		Base: &localBuf[0],
		Len:  uint64(len(localBuf)),
	}

	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  len(localBuf),
	}

	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_READV,
		uintptr(pid),                        // Remote process PID
		uintptr(unsafe.Pointer(&localIov)),  // Local iovec
		uintptr(1),                          // Number of local iovecs
		uintptr(unsafe.Pointer(&remoteIov)), // Remote iovec
		uintptr(1),                          // Number of remote iovecs
		uintptr(0),                          // Flags (reserved for future use)
	)
	if errno != 0 {
		return 0, errno
	}
	return int(n), 0
}

// transferError maps an errno from the process_vm_* calls onto the process sentinels.
func transferError(op string, pid process.ProcessID, errno unix.Errno) error {
	switch errno {
	case unix.EFAULT, unix.EIO:
		return process.ErrPartialTransfer
	case unix.EPERM, unix.EACCES:
		return fmt.Errorf("%s: %w (%v)", op, process.ErrPermissionDenied, errno)
	case unix.ESRCH:
		return fmt.Errorf("%s: process %d has exited: %w", op, pid, process.ErrProcessNotOpen)
	}
	return fmt.Errorf("%s failed: %s (errno: %d)", op, errno.Error(), int(errno))
}

// ReadMemoryAt reads into buf from addr. A read that stops at an unmapped page
// returns the bytes before it.
func (p *LinuxProcess) ReadMemoryAt(buf []byte, addr process.ProcessMemoryAddress) (int, error) {
	pid := p.GetPID()
	if pid == 0 {
		return 0, process.ErrProcessNotOpen
	}
	if len(buf) == 0 {
		return 0, nil
	}

	n, errno := process_vm_readv(pid, buf, addr)
	if errno != 0 {
		return 0, transferError("process_vm_readv", pid, errno)
	}
	return n, nil
}
