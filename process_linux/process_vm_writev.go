//go:build linux

package process_linux

import (
	"errors"
	"fmt"
	"unsafe"

	"gomemscan/process"

	"golang.org/x/sys/unix"
)

// process_vm_writev uses the process_vm_writev syscall to write memory to another process
func process_vm_writev(pid process.ProcessID, localBuf []byte, remoteAddr process.ProcessMemoryAddress) (int, unix.Errno) {
	localIov := unix.Iovec{
		Base: &localBuf[0],
		Len:  uint64(len(localBuf)),
	}

	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  len(localBuf),
	}

	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_WRITEV,
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

// procMemWrite writes through /proc/<pid>/mem, which honours ptrace access rather
// than page protection, so read-only text and data can be patched.
func procMemWrite(pid process.ProcessID, data []byte, addr process.ProcessMemoryAddress) (int, unix.Errno) {
	fd, err := unix.Open(fmt.Sprintf("/proc/%d/mem", pid), unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return 0, asErrno(err)
	}
	defer unix.Close(fd)

	n, err := unix.Pwrite(fd, data, int64(addr))
	if err != nil {
		return 0, asErrno(err)
	}
	return n, 0
}

func asErrno(err error) unix.Errno {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return unix.EIO
}

// WriteMemoryAt writes data at addr. Pages that process_vm_writev refuses because
// they are not writable are retried through /proc/<pid>/mem.
func (p *LinuxProcess) WriteMemoryAt(addr process.ProcessMemoryAddress, data []byte) (int, error) {
	pid := p.GetPID()
	if pid == 0 {
		return 0, process.ErrProcessNotOpen
	}
	if len(data) == 0 {
		return 0, nil
	}

	n, errno := process_vm_writev(pid, data, addr)
	if errno == unix.EFAULT {
		p.log.Debugln("process_vm_writev faulted at", addr.ToString(), "retrying through /proc/pid/mem")
		n, errno = procMemWrite(pid, data, addr)
	}
	if errno != 0 {
		return 0, transferError("write", pid, errno)
	}
	return n, nil
}
