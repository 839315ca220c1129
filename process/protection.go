package process

import (
	"fmt"
	"strings"
)

// Protection holds page protection bits. The values are the Windows PAGE_* constants
// on every platform; the Linux handle translates rwx permissions onto them.
type Protection uint32

const (
	PageNoAccess         Protection = 0x01
	PageReadOnly         Protection = 0x02
	PageReadWrite        Protection = 0x04
	PageWriteCopy        Protection = 0x08
	PageExecute          Protection = 0x10
	PageExecuteRead      Protection = 0x20
	PageExecuteReadWrite Protection = 0x40
	PageExecuteWriteCopy Protection = 0x80
	PageGuard            Protection = 0x100
	PageNoCache          Protection = 0x200
	PageWriteCombine     Protection = 0x400
)

// DefaultScanProtection is the mask used by scans that do not pick one.
const DefaultScanProtection = PageReadWrite | PageReadOnly

const (
	readableMask   = PageReadOnly | PageReadWrite | PageWriteCopy | PageExecuteRead | PageExecuteReadWrite | PageExecuteWriteCopy
	writableMask   = PageReadWrite | PageWriteCopy | PageExecuteReadWrite | PageExecuteWriteCopy
	executableMask = PageExecute | PageExecuteRead | PageExecuteReadWrite | PageExecuteWriteCopy
	unsafeMask     = PageGuard | PageNoCache | PageWriteCombine
)

var protectionNames = map[string]Protection{
	"noaccess":          PageNoAccess,
	"readonly":          PageReadOnly,
	"readwrite":         PageReadWrite,
	"writecopy":         PageWriteCopy,
	"execute":           PageExecute,
	"execute-read":      PageExecuteRead,
	"execute-readwrite": PageExecuteReadWrite,
	"execute-writecopy": PageExecuteWriteCopy,
}

// ParseProtection resolves names such as "readonly" or "execute-read" into a mask.
func ParseProtection(names ...string) (Protection, error) {
	var p Protection
	for _, name := range names {
		bit, ok := protectionNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return 0, fmt.Errorf("unknown protection %q", name)
		}
		p |= bit
	}
	return p, nil
}

// ParsePerms converts a /proc/<pid>/maps permission string ("r-xp") to Protection.
func ParsePerms(perms string) Protection {
	r := len(perms) > 0 && perms[0] == 'r'
	w := len(perms) > 1 && perms[1] == 'w'
	x := len(perms) > 2 && perms[2] == 'x'

	switch {
	case x && w:
		return PageExecuteReadWrite
	case x && r:
		return PageExecuteRead
	case x:
		return PageExecute
	case w:
		return PageReadWrite
	case r:
		return PageReadOnly
	}
	return PageNoAccess
}

func (p Protection) IsReadable() bool {
	return p&readableMask != 0 && p&PageGuard == 0
}

func (p Protection) IsWritable() bool {
	return p&writableMask != 0
}

func (p Protection) IsExecutable() bool {
	return p&executableMask != 0
}

// IsUnsafe reports guard, no-cache and write-combine pages, which scans never touch.
func (p Protection) IsUnsafe() bool {
	return p&unsafeMask != 0
}

func (p Protection) String() string {
	b := []byte("---")
	if p.IsReadable() {
		b[0] = 'r'
	}
	if p.IsWritable() {
		b[1] = 'w'
	}
	if p.IsExecutable() {
		b[2] = 'x'
	}
	s := string(b)
	if p&PageGuard != 0 {
		s += "g"
	}
	return s
}

// RegionState is the commit state of a region, using the Windows MEM_* values.
type RegionState uint32

const (
	StateCommit  RegionState = 0x1000
	StateReserve RegionState = 0x2000
	StateFree    RegionState = 0x10000
)

func (s RegionState) String() string {
	switch s {
	case StateCommit:
		return "commit"
	case StateReserve:
		return "reserve"
	case StateFree:
		return "free"
	}
	return fmt.Sprintf("state(0x%x)", uint32(s))
}

// MemoryRegion describes one contiguous range sharing a protection and state.
type MemoryRegion struct {
	Base    ProcessMemoryAddress `json:"base"`
	Size    ProcessMemorySize    `json:"size"`
	Protect Protection           `json:"protect"`
	State   RegionState          `json:"state"`
	Path    string               `json:"path,omitempty"`
}

// End returns the first address past the region.
func (r MemoryRegion) End() ProcessMemoryAddress {
	return r.Base + ProcessMemoryAddress(r.Size)
}

func (r MemoryRegion) Contains(addr ProcessMemoryAddress) bool {
	return addr >= r.Base && addr < r.End()
}

// IsBacked reports whether the region has committed memory behind it.
func (r MemoryRegion) IsBacked() bool {
	return r.State&(StateFree|StateReserve) == 0
}

func (r MemoryRegion) String() string {
	return fmt.Sprintf("Address: %x, Size: %d, Perms: %s, State: %s %s", uint64(r.Base), r.Size, r.Protect, r.State, r.Path)
}
