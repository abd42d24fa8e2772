package config

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"finhealth/internal/engine"
	"finhealth/internal/redflag"
)

// File mirrors the on-disk YAML layout: global scoring weights, aggregator
// tuning and per-module analysis definitions.
type File struct {
	Scoring    engine.ScoringConfig     `yaml:"scoring"`
	Aggregator redflag.AggregatorConfig `yaml:"aggregator"`
	Modules    []engine.ModuleSpec      `yaml:"modules"`
}

// Snapshot is one immutable, versioned view of the configuration. In-flight
// analyses hold a snapshot and keep a consistent view across reloads.
type Snapshot struct {
	Version    int
	LoadedAt   time.Time
	Scoring    engine.ScoringConfig
	Aggregator redflag.AggregatorConfig
	Engine     *engine.Engine

	// ModuleOrder lists enabled module ids in declaration order; the router
	// runs modules in this order by default.
	ModuleOrder []string
}

// Load parses and validates a configuration file into a snapshot. It fails
// fast on malformed conditions, undeclared metric references, duplicate rule
// ids and non-monotonic score bands.
func Load(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse builds a snapshot from raw YAML.
func Parse(raw []byte) (*Snapshot, error) {
	file := File{
		Scoring:    engine.DefaultScoringConfig(),
		Aggregator: redflag.DefaultAggregatorConfig(),
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := file.Scoring.Validate(); err != nil {
		return nil, fmt.Errorf("scoring config: %w", err)
	}
	normalizeAggregator(&file.Aggregator)

	var modules []*engine.Module
	var order []string
	seen := make(map[string]bool)
	for _, spec := range file.Modules {
		if seen[spec.ID] {
			return nil, fmt.Errorf("duplicate module id %q", spec.ID)
		}
		seen[spec.ID] = true
		if !spec.Enabled {
			continue
		}
		m, err := engine.CompileModule(spec)
		if err != nil {
			return nil, err
		}
		modules = append(modules, m)
		order = append(order, spec.ID)
	}

	return &Snapshot{
		LoadedAt:    time.Now().UTC(),
		Scoring:     file.Scoring,
		Aggregator:  file.Aggregator,
		Engine:      engine.NewEngine(modules, file.Scoring),
		ModuleOrder: order,
	}, nil
}

// normalizeAggregator fills unset aggregator fields from the defaults. The
// pattern rules are code, not data, so they always come from the defaults.
func normalizeAggregator(cfg *redflag.AggregatorConfig) {
	cfg.PatternRules = nil
	*cfg = cfg.WithDefaults()
}

// Store holds the active configuration snapshot and swaps it atomically on
// reload. Readers never block and never observe a half-applied config.
type Store struct {
	path    string
	current atomic.Pointer[Snapshot]
	version atomic.Int64
}

// NewStore loads the initial snapshot from path.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	snap, err := Load(path)
	if err != nil {
		return nil, err
	}
	snap.Version = int(s.version.Add(1))
	s.current.Store(snap)
	return s, nil
}

// Snapshot returns the active configuration snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Reload parses the file again and swaps the active snapshot. On failure the
// previous snapshot stays active.
func (s *Store) Reload() (*Snapshot, error) {
	snap, err := Load(s.path)
	if err != nil {
		return nil, fmt.Errorf("config reload rejected: %w", err)
	}
	snap.Version = int(s.version.Add(1))
	s.current.Store(snap)
	log.Info().Int("version", snap.Version).Str("path", s.path).Msg("configuration snapshot swapped")
	return snap, nil
}
