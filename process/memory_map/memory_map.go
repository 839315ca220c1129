// Package memory_map parses /proc/<pid>/maps style listings and answers region
// queries against them.
package memory_map

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gomemscan/process"
)

// MemoryMapItem represents a memory region in a process's address space
type MemoryMapItem struct {
	Address uint64 // The starting address of the memory region
	Size    uint   // The size of the memory region in bytes
	Perms   string // Permissions (e.g., "r-xp" for read, execute, private)
	Offset  uint64 // Offset into the mapped file
	Path    string // Mapped file or pseudo path such as [heap], empty for anonymous memory
}

// String returns a string representation of the memory map item
func (mmItem MemoryMapItem) String() string {
	return fmt.Sprintf("Address: %x, Size: %d, Perms: %s %s", mmItem.Address, mmItem.Size, mmItem.Perms, mmItem.Path)
}

func (mmItem MemoryMapItem) End() uint64 {
	return mmItem.Address + uint64(mmItem.Size)
}

func (mmItem MemoryMapItem) IsReadable() bool {
	return len(mmItem.Perms) > 0 && mmItem.Perms[0] == 'r'
}

func (mmItem MemoryMapItem) IsWritable() bool {
	return len(mmItem.Perms) > 1 && mmItem.Perms[1] == 'w'
}

// IsFileBacked reports whether the mapping comes from a file on disk.
func (mmItem MemoryMapItem) IsFileBacked() bool {
	return strings.HasPrefix(mmItem.Path, "/")
}

// Region converts the item to a committed process.MemoryRegion.
func (mmItem MemoryMapItem) Region() process.MemoryRegion {
	return process.MemoryRegion{
		Base:    process.ProcessMemoryAddress(mmItem.Address),
		Size:    process.ProcessMemorySize(mmItem.Size),
		Protect: process.ParsePerms(mmItem.Perms),
		State:   process.StateCommit,
		Path:    mmItem.Path,
	}
}

// Parse reads a maps listing. Malformed lines are skipped and the result is sorted
// by address.
func Parse(r io.Reader) ([]MemoryMapItem, error) {
	var memoryMap []MemoryMapItem

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}

		// Parse address range (e.g., "00400000-0040b000")
		addrRange := strings.Split(fields[0], "-")
		if len(addrRange) != 2 {
			continue
		}

		startAddr, err := strconv.ParseUint(addrRange[0], 16, 64)
		if err != nil {
			continue
		}

		endAddr, err := strconv.ParseUint(addrRange[1], 16, 64)
		if err != nil || endAddr <= startAddr {
			continue
		}

		item := MemoryMapItem{
			Address: startAddr,
			Size:    uint(endAddr - startAddr),
			Perms:   fields[1],
		}
		if len(fields) > 2 {
			item.Offset, _ = strconv.ParseUint(fields[2], 16, 64)
		}
		if len(fields) > 5 {
			item.Path = strings.Join(fields[5:], " ")
		}

		memoryMap = append(memoryMap, item)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	sort.Slice(memoryMap, func(i, j int) bool {
		return memoryMap[i].Address < memoryMap[j].Address
	})

	return memoryMap, nil
}

// Find returns the item containing addr. memoryMap must be sorted by address.
func Find(addr uint64, memoryMap []MemoryMapItem) *MemoryMapItem {
	i := sort.Search(len(memoryMap), func(i int) bool {
		return memoryMap[i].End() > addr
	})
	if i < len(memoryMap) && memoryMap[i].Address <= addr {
		return &memoryMap[i]
	}

	return nil
}

// Query describes the region containing addr. When addr falls between mappings the
// unmapped gap up to the next mapping is returned as a free region. Past the last
// mapping it returns process.ErrNoMoreRegions.
func Query(addr uint64, memoryMap []MemoryMapItem) (process.MemoryRegion, error) {
	i := sort.Search(len(memoryMap), func(i int) bool {
		return memoryMap[i].End() > addr
	})
	if i >= len(memoryMap) {
		return process.MemoryRegion{}, process.ErrNoMoreRegions
	}

	item := memoryMap[i]
	if item.Address <= addr {
		return item.Region(), nil
	}

	return process.MemoryRegion{
		Base:    process.ProcessMemoryAddress(addr),
		Size:    process.ProcessMemorySize(item.Address - addr),
		Protect: process.PageNoAccess,
		State:   process.StateFree,
	}, nil
}

// Modules groups file-backed mappings by path. Each module spans from its lowest to
// its highest mapped address, in order of first appearance.
func Modules(memoryMap []MemoryMapItem) []process.ModuleInfo {
	var modules []process.ModuleInfo
	index := make(map[string]int)

	for _, item := range memoryMap {
		if !item.IsFileBacked() {
			continue
		}

		i, ok := index[item.Path]
		if !ok {
			index[item.Path] = len(modules)
			modules = append(modules, process.ModuleInfo{
				Name: filepath.Base(item.Path),
				Path: item.Path,
				Base: process.ProcessMemoryAddress(item.Address),
				Size: process.ProcessMemorySize(item.Size),
			})
			continue
		}

		m := &modules[i]
		start := min(uint64(m.Base), item.Address)
		end := max(uint64(m.End()), item.End())
		m.Base = process.ProcessMemoryAddress(start)
		m.Size = process.ProcessMemorySize(end - start)
	}

	return modules
}
