// Package config loads the gomemscan configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"gomemscan/codec"
	"gomemscan/process"

	"gopkg.in/yaml.v2"
)

const (
	configDir  string = ".gomemscan"
	configFile string = "config.yml"

	DefaultChunkSize       = 1 << 20
	DefaultSymbolCacheSize = 512
	DefaultMaxStringLen    = 256
)

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// ChunkSize is the largest single read issued while scanning a region.
	ChunkSize int `yaml:"chunk-size,omitempty"`

	// Protection lists the page protections a scan visits, e.g. [readwrite, readonly].
	Protection []string `yaml:"protection,omitempty"`

	// DefaultType is the scalar type used when a command is not given one.
	// Empty lets the locator probe every numeric type.
	DefaultType string `yaml:"default-type,omitempty"`

	// SymbolCacheSize bounds the address to symbol cache. Zero disables caching.
	SymbolCacheSize *int `yaml:"symbol-cache-size,omitempty"`

	// DisasmMode is 32 or 64. Zero picks it from the target's pointer width.
	DisasmMode int `yaml:"disasm-mode,omitempty"`

	// DisasmFlavour is intel, gnu or go.
	DisasmFlavour string `yaml:"disasm-flavour,omitempty"`

	MaxStringLen *int `yaml:"max-string-len,omitempty"`
}

// LoadConfig reads the config at path, or at ~/.gomemscan/config.yml when path is empty.
// A missing file is not an error: the defaults are returned.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = GetConfigFilePath(configFile)
		if err != nil {
			return &Config{}, nil
		}
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read config file: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unable to decode config file %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &c, nil
}

// SaveConfig marshals conf into path, creating the directory if needed.
func SaveConfig(conf *Config, path string) error {
	if path == "" {
		var err error
		if path, err = GetConfigFilePath(configFile); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0600)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	usr, err := user.Current()
	if err != nil {
		return "", err
	}
	return filepath.Join(usr.HomeDir, configDir, file), nil
}

// Validate checks the fields that have a closed set of values.
func (c *Config) Validate() error {
	if c.ChunkSize < 0 {
		return fmt.Errorf("chunk-size must not be negative, got %d", c.ChunkSize)
	}
	if _, err := c.ScanProtection(); err != nil {
		return err
	}
	if _, err := c.Type(); err != nil {
		return err
	}
	switch c.DisasmMode {
	case 0, 32, 64:
	default:
		return fmt.Errorf("disasm-mode must be 32 or 64, got %d", c.DisasmMode)
	}
	return nil
}

// ScanProtection resolves Protection into a mask, defaulting to read-write and read-only pages.
func (c *Config) ScanProtection() (process.Protection, error) {
	if len(c.Protection) == 0 {
		return process.DefaultScanProtection, nil
	}
	return process.ParseProtection(c.Protection...)
}

// Type resolves DefaultType. The empty string resolves to the empty type.
func (c *Config) Type() (codec.ScalarType, error) {
	if c.DefaultType == "" {
		return "", nil
	}
	return codec.Lookup(c.DefaultType)
}

func (c *Config) GetChunkSize() int {
	if c.ChunkSize == 0 {
		return DefaultChunkSize
	}
	return c.ChunkSize
}

func (c *Config) GetSymbolCacheSize() int {
	if c.SymbolCacheSize == nil {
		return DefaultSymbolCacheSize
	}
	return *c.SymbolCacheSize
}

func (c *Config) GetMaxStringLen() int {
	if c.MaxStringLen == nil || *c.MaxStringLen <= 0 {
		return DefaultMaxStringLen
	}
	return *c.MaxStringLen
}
