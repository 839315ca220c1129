// Package process_blob provides an in-memory process image. It backs offline dumps
// and stands in for a live target in tests.
package process_blob

import (
	"fmt"
	"sort"
	"sync"

	"gomemscan/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

type imageRegion struct {
	region process.MemoryRegion
	data   []byte
	fault  error
}

// Image implements process.Process over a set of byte slices.
type Image struct {
	pid  process.ProcessID
	name string
	log  *logger.Logger

	mu          sync.Mutex
	open        bool
	regions     []*imageRegion
	modules     []process.ModuleInfo
	minAddr     process.ProcessMemoryAddress
	maxAddr     process.ProcessMemoryAddress
	maxTransfer int
	refreshes   int
}

var _ process.Process = (*Image)(nil)

// NewImage returns an open, empty image with 64-bit user-mode bounds.
func NewImage(pid process.ProcessID, name string) *Image {
	return &Image{
		pid:     pid,
		name:    name,
		log:     logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("image-%d", pid))),
		open:    true,
		maxAddr: 0x800000000000,
	}
}

func (img *Image) Name() string {
	return img.name
}

// Map adds a committed region holding a copy of data.
func (img *Image) Map(base process.ProcessMemoryAddress, data []byte, prot process.Protection) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	return img.insert(&imageRegion{
		region: process.MemoryRegion{Base: base, Size: process.ProcessMemorySize(len(data)), Protect: prot, State: process.StateCommit},
		data:   buf,
	})
}

// Reserve adds a reserved region with no backing memory.
func (img *Image) Reserve(base process.ProcessMemoryAddress, size process.ProcessMemorySize) error {
	return img.insert(&imageRegion{
		region: process.MemoryRegion{Base: base, Size: size, Protect: process.PageNoAccess, State: process.StateReserve},
	})
}

// SetFault makes every transfer touching the region at base fail with err.
func (img *Image) SetFault(base process.ProcessMemoryAddress, err error) error {
	img.mu.Lock()
	defer img.mu.Unlock()

	r := img.find(base)
	if r == nil || r.region.Base != base {
		return fmt.Errorf("%w: no region at %s", process.ErrAddressNotMapped, base.ToString())
	}
	r.fault = err
	return nil
}

// SetMaxTransfer caps the bytes moved by one ReadMemoryAt or WriteMemoryAt call.
// Zero removes the cap.
func (img *Image) SetMaxTransfer(n int) {
	img.mu.Lock()
	defer img.mu.Unlock()
	img.maxTransfer = n
}

func (img *Image) SetBounds(minAddr, maxAddr process.ProcessMemoryAddress) {
	img.mu.Lock()
	defer img.mu.Unlock()
	img.minAddr, img.maxAddr = minAddr, maxAddr
}

func (img *Image) AddModule(m process.ModuleInfo) {
	img.mu.Lock()
	defer img.mu.Unlock()
	img.modules = append(img.modules, m)
}

// Refreshes returns how many times UpdateMemoryMap was called.
func (img *Image) Refreshes() int {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.refreshes
}

func (img *Image) insert(r *imageRegion) error {
	if r.region.Size == 0 {
		return fmt.Errorf("empty region at %s", r.region.Base.ToString())
	}

	img.mu.Lock()
	defer img.mu.Unlock()

	i := sort.Search(len(img.regions), func(i int) bool {
		return img.regions[i].region.Base >= r.region.Base
	})
	if i < len(img.regions) && img.regions[i].region.Base < r.region.End() {
		return fmt.Errorf("region at %s overlaps %s", r.region.Base.ToString(), img.regions[i].region.Base.ToString())
	}
	if i > 0 && img.regions[i-1].region.End() > r.region.Base {
		return fmt.Errorf("region at %s overlaps %s", r.region.Base.ToString(), img.regions[i-1].region.Base.ToString())
	}

	img.regions = append(img.regions, nil)
	copy(img.regions[i+1:], img.regions[i:])
	img.regions[i] = r
	return nil
}

// find returns the region containing addr. Callers hold mu.
func (img *Image) find(addr process.ProcessMemoryAddress) *imageRegion {
	i := sort.Search(len(img.regions), func(i int) bool {
		return img.regions[i].region.End() > addr
	})
	if i < len(img.regions) && img.regions[i].region.Base <= addr {
		return img.regions[i]
	}
	return nil
}

func (img *Image) GetPID() process.ProcessID {
	return img.pid
}

func (img *Image) IsOpen() bool {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.open
}

func (img *Image) Close() error {
	img.mu.Lock()
	defer img.mu.Unlock()

	if !img.open {
		return nil
	}
	img.open = false
	img.log.Infoln("Image closed")
	return nil
}

func (img *Image) AddressBounds() (process.ProcessMemoryAddress, process.ProcessMemoryAddress) {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.minAddr, img.maxAddr
}

func (img *Image) UpdateMemoryMap() error {
	img.mu.Lock()
	defer img.mu.Unlock()

	if !img.open {
		return process.ErrProcessNotOpen
	}
	img.refreshes++
	return nil
}

func (img *Image) QueryRegion(addr process.ProcessMemoryAddress) (process.MemoryRegion, error) {
	img.mu.Lock()
	defer img.mu.Unlock()

	if !img.open {
		return process.MemoryRegion{}, process.ErrProcessNotOpen
	}

	i := sort.Search(len(img.regions), func(i int) bool {
		return img.regions[i].region.End() > addr
	})
	if i >= len(img.regions) {
		return process.MemoryRegion{}, process.ErrNoMoreRegions
	}

	r := img.regions[i].region
	if r.Base <= addr {
		return r, nil
	}
	return process.MemoryRegion{
		Base:    addr,
		Size:    process.ProcessMemorySize(r.Base - addr),
		Protect: process.PageNoAccess,
		State:   process.StateFree,
	}, nil
}

// transfer walks contiguous regions starting at addr and calls fn for each span that
// passes check. It stops at the first gap, fault or refused region.
func (img *Image) transfer(addr process.ProcessMemoryAddress, want int, check func(process.Protection) bool, fn func(r *imageRegion, off, n, done int)) (int, error) {
	if img.maxTransfer > 0 && want > img.maxTransfer {
		want = img.maxTransfer
	}

	done := 0
	for done < want {
		at := addr + process.ProcessMemoryAddress(done)
		r := img.find(at)
		if r == nil || !r.region.IsBacked() || r.data == nil {
			break
		}
		if r.fault != nil {
			if done > 0 {
				break
			}
			return 0, r.fault
		}
		if !check(r.region.Protect) {
			break
		}

		off := int(at - r.region.Base)
		n := min(want-done, len(r.data)-off)
		fn(r, off, n, done)
		done += n
	}

	if done == 0 {
		return 0, process.ErrPartialTransfer
	}
	if done < want {
		return done, process.ErrPartialTransfer
	}
	return done, nil
}

// ReadMemoryAt copies from contiguous readable regions. It stops short with
// process.ErrPartialTransfer at the first gap or unreadable page.
func (img *Image) ReadMemoryAt(buf []byte, addr process.ProcessMemoryAddress) (int, error) {
	img.mu.Lock()
	defer img.mu.Unlock()

	if !img.open {
		return 0, process.ErrProcessNotOpen
	}

	return img.transfer(addr, len(buf), process.Protection.IsReadable, func(r *imageRegion, off, n, done int) {
		copy(buf[done:done+n], r.data[off:off+n])
	})
}

// WriteMemoryAt copies into contiguous writable regions.
func (img *Image) WriteMemoryAt(addr process.ProcessMemoryAddress, data []byte) (int, error) {
	img.mu.Lock()
	defer img.mu.Unlock()

	if !img.open {
		return 0, process.ErrProcessNotOpen
	}

	return img.transfer(addr, len(data), process.Protection.IsWritable, func(r *imageRegion, off, n, done int) {
		copy(r.data[off:off+n], data[done:done+n])
	})
}

// ProtectMemory applies prot to every region overlapping the range. Regions are not
// split. The previous protection of the first region is returned.
func (img *Image) ProtectMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize, prot process.Protection) (process.Protection, error) {
	img.mu.Lock()
	defer img.mu.Unlock()

	if !img.open {
		return 0, process.ErrProcessNotOpen
	}

	first := img.find(addr)
	if first == nil || !first.region.IsBacked() {
		return 0, fmt.Errorf("%w: %s", process.ErrAddressNotMapped, addr.ToString())
	}
	old := first.region.Protect

	end := addr + process.ProcessMemoryAddress(size)
	for _, r := range img.regions {
		if r.region.End() <= addr || r.region.Base >= end || !r.region.IsBacked() {
			continue
		}
		r.region.Protect = prot
	}
	return old, nil
}

func (img *Image) Modules() ([]process.ModuleInfo, error) {
	img.mu.Lock()
	defer img.mu.Unlock()

	if !img.open {
		return nil, process.ErrProcessNotOpen
	}
	result := make([]process.ModuleInfo, len(img.modules))
	copy(result, img.modules)
	return result, nil
}
