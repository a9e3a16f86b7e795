// Package config loads plexid's single process-wide Config, grounded
// on cmn's ClusterConfig/GCO read-mostly-singleton pattern: one value
// constructed at startup and handed to every component by reference,
// never a package-level hidden singleton mutated from arbitrary call
// sites (the "global mutable state" design note in §9).
/*
 * Copyright (c) 2024, RICH project contributors.
 */
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every compile-time constant the specification leaves
// as "compile-time constants" (§6) promoted to runtime configuration,
// plus the pool capacities the arena-based Schedule/Statistics/
// Vicinity model needs at construction time.
type Config struct {
	Listen string `yaml:"listen"`

	Pools struct {
		MaxSlotframes int `yaml:"max_slotframes"`
		MaxLinks      int `yaml:"max_links"`
		MaxStats      int `yaml:"max_stats"`
		MaxEnhanced   int `yaml:"max_enhanced"`
		MaxProximates int `yaml:"max_proximates"`
	} `yaml:"pools"`

	Vicinity struct {
		PheromoneChunk  int           `yaml:"pheromone_chunk"`
		PheromoneDecay  int           `yaml:"pheromone_decay"`
		PheromoneMax    int           `yaml:"pheromone_max"`
		PheromoneWindow time.Duration `yaml:"pheromone_window"`
	} `yaml:"vicinity"`

	Notify struct {
		DebounceDelay       time.Duration `yaml:"debounce_delay"`
		LinkUpdate          time.Duration `yaml:"link_update"`
		QueueUpdate         time.Duration `yaml:"queue_update"`
		NeighborsObsDefault bool          `yaml:"neighbors_obs_default"`
	} `yaml:"notify"`

	// DenseTags is read from the config file and PLEXID_DENSE_TAGS. No
	// component reads it: statistics entries always keep id, enable,
	// metric and window as separate struct fields, with no 16-bit
	// packed layout.
	DenseTags bool `yaml:"dense_tags"`
}

// Default mirrors the constants implied by §6/§8 of the
// specification (PHEROMONE_WINDOW, DEBOUNCE_DELAY=5s, etc.).
func Default() *Config {
	c := &Config{Listen: ":5683"}
	c.Pools.MaxSlotframes = 16
	c.Pools.MaxLinks = 128
	c.Pools.MaxStats = 256
	c.Pools.MaxEnhanced = 64
	c.Pools.MaxProximates = 16

	c.Vicinity.PheromoneChunk = 16
	c.Vicinity.PheromoneDecay = 4
	c.Vicinity.PheromoneMax = 100
	c.Vicinity.PheromoneWindow = 20 * time.Second

	c.Notify.DebounceDelay = 5 * time.Second
	c.Notify.LinkUpdate = 30 * time.Second
	c.Notify.QueueUpdate = 10 * time.Second
	c.Notify.NeighborsObsDefault = false

	c.DenseTags = false
	return c
}

// Load reads path if non-empty and overlays environment overrides,
// the way cmn/k8s.go probes its environment for cluster bring-up
// parameters rather than requiring every field on the command line.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, err
		}
	}
	c.applyEnv()
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PLEXID_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("PLEXID_MAX_SLOTFRAMES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pools.MaxSlotframes = n
		}
	}
	if v := os.Getenv("PLEXID_DENSE_TAGS"); v != "" {
		c.DenseTags = v == "1" || v == "true"
	}
}
