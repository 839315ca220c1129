package process

import (
	"errors"
	"iter"
)

// Regions walks the address space of p between start and end and yields every committed
// region whose protection intersects mask. A zero start or end falls back to the
// process bounds, and a zero mask disables the protection filter.
//
// The map is refreshed once at the start of every pass. A failed query is yielded as
// a *QueryError and ends the pass.
func Regions(p Process, start, end ProcessMemoryAddress, mask Protection) iter.Seq2[MemoryRegion, error] {
	return func(yield func(MemoryRegion, error) bool) {
		if !p.IsOpen() {
			yield(MemoryRegion{}, ErrProcessNotOpen)
			return
		}

		minAddr, maxAddr := p.AddressBounds()
		if start == 0 {
			start = minAddr
		}
		if end == 0 {
			end = maxAddr
		}

		if err := p.UpdateMemoryMap(); err != nil {
			yield(MemoryRegion{}, &QueryError{Address: start, Err: err})
			return
		}

		offset := start
		for offset < end {
			region, err := p.QueryRegion(offset)
			if errors.Is(err, ErrNoMoreRegions) {
				return
			}
			if err != nil {
				var qe *QueryError
				if !errors.As(err, &qe) {
					err = &QueryError{Address: offset, Err: err}
				}
				yield(MemoryRegion{}, err)
				return
			}

			next := region.End()
			if region.Size == 0 || next <= offset {
				return
			}
			offset = next

			if !region.IsBacked() {
				continue
			}
			if mask != 0 && (region.Protect&mask == 0 || region.Protect.IsUnsafe()) {
				continue
			}

			if !yield(region, nil) {
				return
			}
		}
	}
}

// CollectRegions drains Regions into a slice.
func CollectRegions(p Process, start, end ProcessMemoryAddress, mask Protection) ([]MemoryRegion, error) {
	var regions []MemoryRegion
	for region, err := range Regions(p, start, end, mask) {
		if err != nil {
			return regions, err
		}
		regions = append(regions, region)
	}
	return regions, nil
}
