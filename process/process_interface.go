package process

// Process is an open capability on one target process. It is owned by a single session
// and is not meant for concurrent use without external synchronization.
type Process interface {
	// GetPID returns the process ID
	GetPID() ProcessID

	// IsOpen reports whether the handle can still be used.
	IsOpen() bool

	// Close releases the handle. Calling it more than once is safe.
	Close() error

	// AddressBounds returns the lowest and the first invalid user-mode address for the
	// target's bitness.
	AddressBounds() (min, max ProcessMemoryAddress)

	// UpdateMemoryMap refreshes any cached view of the address space. Region
	// enumeration calls it once per pass.
	UpdateMemoryMap() error

	// QueryRegion describes the region containing addr, or the free gap starting at
	// addr. It returns ErrNoMoreRegions past the last region.
	QueryRegion(addr ProcessMemoryAddress) (MemoryRegion, error)

	// ReadMemoryAt performs one OS read into buf. A short transfer returns the count
	// with ErrPartialTransfer; permission failures wrap ErrPermissionDenied.
	ReadMemoryAt(buf []byte, addr ProcessMemoryAddress) (int, error)

	// WriteMemoryAt performs one OS write of data.
	WriteMemoryAt(addr ProcessMemoryAddress, data []byte) (int, error)

	// ProtectMemory changes the protection of a range and returns the previous one.
	ProtectMemory(addr ProcessMemoryAddress, size ProcessMemorySize, prot Protection) (Protection, error)

	// Modules lists the loaded modules.
	Modules() ([]ModuleInfo, error)
}
