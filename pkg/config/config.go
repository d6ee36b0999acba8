// pkg/config/config.go
// Package config loads the kernel's memory configuration from JSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"vmkern/internal/logging"
	"vmkern/pkg/exefile"
	"vmkern/pkg/pager"
	"vmkern/pkg/vm"
)

// DefaultStackPages is the number of stack pages given to each process
const DefaultStackPages = 8

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the on-disk kernel configuration. Zero values fall back to
// the package defaults.
type Config struct {
	PageSize         int    `json:"page_size"`
	Frames           int    `json:"frames"`
	SwapPath         string `json:"swap_path"`
	SwapInitialSlots int    `json:"swap_initial_slots"`
	SwapMaxSlots     int    `json:"swap_max_slots"`
	StackPages       int    `json:"stack_pages"`
	LogLevel         string `json:"log_level"`
	TracePath        string `json:"trace_path"`
	ImageCachePages  int    `json:"image_cache_pages"`
	MaxPages         int    `json:"max_pages"`
}

// Default returns the built-in configuration. Swap lives in memory and
// tracing is off.
func Default() Config {
	return Config{
		PageSize:         pager.DefaultPageSize,
		Frames:           vm.DefaultFrames,
		SwapInitialSlots: pager.DefaultInitialSlots,
		StackPages:       DefaultStackPages,
		LogLevel:         "info",
		ImageCachePages:  exefile.DefaultPageCacheCapacity,
		MaxPages:         vm.DefaultMaxPages,
	}
}

// Load reads path and fills unset fields from Default
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	var raw Config
	if err := dec.Decode(&raw); err != nil {
		return cfg, fmt.Errorf("config: decode %s: %w", path, err)
	}

	cfg.merge(raw)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) merge(o Config) {
	if o.PageSize != 0 {
		c.PageSize = o.PageSize
	}
	if o.Frames != 0 {
		c.Frames = o.Frames
	}
	if o.SwapPath != "" {
		c.SwapPath = o.SwapPath
	}
	if o.SwapInitialSlots != 0 {
		c.SwapInitialSlots = o.SwapInitialSlots
	}
	if o.SwapMaxSlots != 0 {
		c.SwapMaxSlots = o.SwapMaxSlots
	}
	if o.StackPages != 0 {
		c.StackPages = o.StackPages
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.TracePath != "" {
		c.TracePath = o.TracePath
	}
	if o.ImageCachePages != 0 {
		c.ImageCachePages = o.ImageCachePages
	}
	if o.MaxPages != 0 {
		c.MaxPages = o.MaxPages
	}
}

// Validate checks value ranges
func (c Config) Validate() error {
	if c.PageSize <= 0 || c.PageSize&(c.PageSize-1) != 0 {
		return fmt.Errorf("%w: page_size %d is not a positive power of two", ErrInvalidConfig, c.PageSize)
	}
	if c.Frames <= 0 {
		return fmt.Errorf("%w: frames must be positive, got %d", ErrInvalidConfig, c.Frames)
	}
	if c.SwapInitialSlots < 0 || c.SwapMaxSlots < 0 {
		return fmt.Errorf("%w: swap slot counts must not be negative", ErrInvalidConfig)
	}
	if c.ImageCachePages < 0 {
		return fmt.Errorf("%w: image_cache_pages must not be negative, got %d", ErrInvalidConfig, c.ImageCachePages)
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("%w: max_pages must not be negative, got %d", ErrInvalidConfig, c.MaxPages)
	}
	if c.StackPages < 0 {
		return fmt.Errorf("%w: stack_pages must not be negative, got %d", ErrInvalidConfig, c.StackPages)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// VMOptions converts the configuration for vm.New
func (c Config) VMOptions(logger *slog.Logger, observer vm.Observer) vm.Options {
	opts := vm.Options{
		PageSize:         c.PageSize,
		Frames:           c.Frames,
		SwapPath:         c.SwapPath,
		SwapInitialSlots: c.SwapInitialSlots,
		SwapMaxSlots:     c.SwapMaxSlots,
		MaxPages:         c.MaxPages,
		Logger:           logger,
		Observer:         observer,
	}
	return opts
}
