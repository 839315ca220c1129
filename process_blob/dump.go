package process_blob

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gomemscan/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

var log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "dump"))

const (
	metadataFile  = "metadata.json"
	memoryMapFile = "process_memory_map.json"

	// DefaultMaxRegionSize bounds the regions Save writes out.
	DefaultMaxRegionSize = 100 * 1024 * 1024
)

type metadata struct {
	PID     process.ProcessID    `json:"pid"`
	Name    string               `json:"name"`
	Modules []process.ModuleInfo `json:"modules,omitempty"`
}

// SaveOptions controls which regions Save writes.
type SaveOptions struct {
	Name          string
	Mask          process.Protection // zero saves every committed region
	MaxRegionSize process.ProcessMemorySize
}

// SaveStats counts what happened to each region during Save.
type SaveStats struct {
	Saved      int
	TooLarge   int
	ReadError  int
	WriteError int
}

func blobName(base process.ProcessMemoryAddress, size process.ProcessMemorySize) string {
	return fmt.Sprintf("blob_0x%x_%d.bin", uint64(base), uint64(size))
}

// Save writes the committed regions of p into dirname: metadata.json, the region list
// in process_memory_map.json and one blob file per region that could be read.
func Save(p process.Process, dirname string, opts SaveOptions) (SaveStats, error) {
	var stats SaveStats

	if !p.IsOpen() {
		return stats, process.ErrProcessNotOpen
	}
	if opts.MaxRegionSize == 0 {
		opts.MaxRegionSize = DefaultMaxRegionSize
	}
	if opts.Name == "" {
		opts.Name = "unknown"
	}

	if err := os.MkdirAll(dirname, 0755); err != nil {
		return stats, fmt.Errorf("failed to create directory: %w", err)
	}

	log.Infoln("Saving process", p.GetPID(), "to directory:", dirname)

	meta := metadata{PID: p.GetPID(), Name: opts.Name}
	modules, err := p.Modules()
	if err != nil {
		log.Debugln("Failed to list modules:", err)
	}
	meta.Modules = modules

	metadataJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return stats, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dirname, metadataFile), metadataJSON, 0644); err != nil {
		return stats, fmt.Errorf("failed to write metadata file: %w", err)
	}

	regions, err := process.CollectRegions(p, 0, 0, opts.Mask)
	if err != nil {
		return stats, fmt.Errorf("failed to enumerate regions: %w", err)
	}

	memoryMapJSON, err := json.MarshalIndent(regions, "", "  ")
	if err != nil {
		return stats, fmt.Errorf("failed to marshal memory map: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dirname, memoryMapFile), memoryMapJSON, 0644); err != nil {
		return stats, fmt.Errorf("failed to write memory map file: %w", err)
	}

	for _, region := range regions {
		if region.Size > opts.MaxRegionSize {
			log.Infoln("Skipping large region at", region.Base.ToString(), "(size:", region.Size/1024/1024, "MB)")
			stats.TooLarge++
			continue
		}

		data, err := process.ReadMemory(p, region.Base, region.Size)
		if errors.Is(err, process.ErrProcessNotOpen) {
			return stats, err
		}
		if err != nil {
			log.Debugln("Failed to read memory region at", region.Base.ToString(), ":", err)
			stats.ReadError++
			continue
		}

		filename := filepath.Join(dirname, blobName(region.Base, region.Size))
		if err := os.WriteFile(filename, data, 0644); err != nil {
			log.Infoln("Failed to write memory file for region at", region.Base.ToString(), ":", err)
			stats.WriteError++
			continue
		}
		stats.Saved++
	}

	log.Infoln("Process dump saved:", stats.Saved, "regions saved,", stats.ReadError+stats.WriteError, "errors")
	return stats, nil
}

// Load reads a dump written by Save. Regions whose blob is missing stay listed but
// transfers touching them move no bytes.
func Load(dirname string) (*Image, error) {
	metadataBytes, err := os.ReadFile(filepath.Join(dirname, metadataFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta metadata
	if err := json.Unmarshal(metadataBytes, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	mmBytes, err := os.ReadFile(filepath.Join(dirname, memoryMapFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read memory map: %w", err)
	}

	var regions []process.MemoryRegion
	if err := json.Unmarshal(mmBytes, &regions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal memory map: %w", err)
	}

	sort.Slice(regions, func(i, j int) bool {
		return regions[i].Base < regions[j].Base
	})

	img := NewImage(meta.PID, meta.Name)
	for _, m := range meta.Modules {
		img.AddModule(m)
	}
	for _, region := range regions {
		if region.Size == 0 {
			continue
		}

		filename := filepath.Join(dirname, blobName(region.Base, region.Size))
		data, err := os.ReadFile(filename)
		missing := errors.Is(err, os.ErrNotExist)
		if err != nil && !missing {
			return nil, fmt.Errorf("failed to read blob %s: %w", filename, err)
		}

		r := &imageRegion{region: region}
		if !missing {
			// Short blobs come from partial reads; the tail reads back as zeroes.
			r.data = make([]byte, region.Size)
			copy(r.data, data)
		}
		if err := img.insert(r); err != nil {
			return nil, err
		}
	}

	log.Infoln("Loaded dump of", meta.Name, "pid", meta.PID, "with", len(regions), "regions")
	return img, nil
}
