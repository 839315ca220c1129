// Package symbol names addresses relative to the loaded module that contains them.
package symbol

import (
	"fmt"
	"path/filepath"
	"strings"

	"gomemscan/process"

	lru "github.com/hashicorp/golang-lru"
)

// ModuleSource lists loaded modules. Every process.Process is one.
type ModuleSource interface {
	Modules() ([]process.ModuleInfo, error)
}

// Resolve returns "<module>+0x<offset>" for an address inside a loaded module and the
// plain address otherwise. The module list is fetched on every call.
func Resolve(src ModuleSource, addr process.ProcessMemoryAddress) string {
	modules, err := src.Modules()
	if err == nil {
		for _, m := range modules {
			if m.Contains(addr) {
				return fmt.Sprintf("%s+0x%08X", m.Name, uint64(addr-m.Base))
			}
		}
	}
	return fmt.Sprintf("0x%08X", uint64(addr))
}

// baseName splits on both separators so Windows paths work on any host.
func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

// HasModule reports whether a module named name is loaded. A name without an
// extension also matches name.dll and name.so.
func HasModule(src ModuleSource, name string) (bool, error) {
	modules, err := src.Modules()
	if err != nil {
		return false, err
	}

	want := []string{name}
	if filepath.Ext(name) == "" {
		want = append(want, name+".dll", name+".so")
	}

	for _, m := range modules {
		for _, w := range want {
			if strings.EqualFold(m.Name, w) || strings.EqualFold(baseName(m.Path), w) {
				return true, nil
			}
		}
	}
	return false, nil
}

// Cache memoizes Resolve by address.
type Cache struct {
	src   ModuleSource
	cache *lru.Cache
}

func NewCache(src ModuleSource, size int) (*Cache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create symbol cache: %w", err)
	}
	return &Cache{src: src, cache: c}, nil
}

func (c *Cache) Resolve(addr process.ProcessMemoryAddress) string {
	if v, ok := c.cache.Get(addr); ok {
		return v.(string)
	}
	name := Resolve(c.src, addr)
	c.cache.Add(addr, name)
	return name
}

// Purge drops every cached name, for use after modules are loaded or unloaded.
func (c *Cache) Purge() {
	c.cache.Purge()
}
