// Package config implements the configuration collaborator: a
// persisted store of connections, sync pairs, and daemon settings, loaded
// from TOML with a defaults-then-unmarshal-then-validate pattern. Unlike a
// one-shot migration run's read-only config, this store is mutable and
// atomically persisted, since the daemon and any control surface read and
// write it throughout its lifetime.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Limetric/dbsyncd/internal/model"
)

// Config is the full persisted document.
type Config struct {
	Connections []ConnectionEntry `toml:"connection"`
	Pairs       []PairEntry       `toml:"pair"`
	Settings    SettingsEntry     `toml:"settings"`
}

// ConnectionEntry is the TOML-serializable form of model.ConnectionSpec.
type ConnectionEntry struct {
	Name     string `toml:"name"`
	Engine   string `toml:"engine"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
}

func (e ConnectionEntry) toSpec() model.ConnectionSpec {
	return model.ConnectionSpec{
		Name: e.Name, Engine: model.Engine(e.Engine), Host: e.Host,
		Port: e.Port, User: e.User, Password: e.Password, Database: e.Database,
	}
}

// PairEntry is the TOML-serializable form of model.PairSpec.
type PairEntry struct {
	Name           string    `toml:"name"`
	Source         string    `toml:"source"`
	Target         string    `toml:"target"`
	SyncSchema     bool      `toml:"sync_schema"`
	SyncData       bool      `toml:"sync_data"`
	SyncProcedures bool      `toml:"sync_procedures"`
	SyncTriggers   bool      `toml:"sync_triggers"`
	IncludeTables  []string  `toml:"include_tables"`
	ExcludeTables  []string  `toml:"exclude_tables"`
	Enabled        bool      `toml:"enabled"`
	LastSyncAt     time.Time `toml:"last_sync_at"`
}

func (e PairEntry) toSpec() model.PairSpec {
	return model.PairSpec{
		Name: e.Name, Source: e.Source, Target: e.Target,
		SyncSchema: e.SyncSchema, SyncData: e.SyncData,
		SyncProcedures: e.SyncProcedures, SyncTriggers: e.SyncTriggers,
		IncludeTables: e.IncludeTables, ExcludeTables: e.ExcludeTables,
		Enabled: e.Enabled, LastSyncAt: e.LastSyncAt,
	}
}

// SettingsEntry is the TOML-serializable form of model.Settings.
type SettingsEntry struct {
	PollIntervalSeconds        int    `toml:"poll_interval_seconds"`
	SchemaCheckIntervalSeconds int    `toml:"schema_check_interval_seconds"`
	LogLevel                   string `toml:"log_level"`
	MaxRetries                 int    `toml:"max_retries"`
	RetryDelaySeconds          int    `toml:"retry_delay_seconds"`
}

func (e SettingsEntry) toSettings() model.Settings {
	return model.Settings{
		PollInterval:        time.Duration(e.PollIntervalSeconds) * time.Second,
		SchemaCheckInterval: time.Duration(e.SchemaCheckIntervalSeconds) * time.Second,
		LogLevel:            e.LogLevel,
		MaxRetries:          e.MaxRetries,
		RetryDelay:          time.Duration(e.RetryDelaySeconds) * time.Second,
	}
}

func defaultSettingsEntry() SettingsEntry {
	return SettingsEntry{
		PollIntervalSeconds:        30,
		SchemaCheckIntervalSeconds: 300,
		LogLevel:                   "info",
		MaxRetries:                 3,
		RetryDelaySeconds:          5,
	}
}

// Store is the mutable, file-backed configuration collaborator. All
// mutating operations persist the whole document atomically (write to a
// temp file, then rename) and are serialized by mu, since it is the one
// piece of state shared across pair workers.
type Store struct {
	mu   sync.Mutex
	path string
	cfg  Config
}

// Load reads path and validates it, applying settings defaults when the
// document omits [settings] entirely. A missing or corrupt file is a load
// failure; the daemon refuses to start in that case.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Config{Settings: defaultSettingsEntry()}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Store{path: path, cfg: cfg}, nil
}

func validate(cfg Config) error {
	seen := map[string]bool{}
	for _, c := range cfg.Connections {
		if c.Name == "" {
			return fmt.Errorf("connection with empty name")
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate connection name %q", c.Name)
		}
		seen[c.Name] = true
		switch model.Engine(c.Engine) {
		case model.EngineMySQL, model.EnginePostgreSQL:
		default:
			return fmt.Errorf("connection %q: unsupported engine %q", c.Name, c.Engine)
		}
	}
	pairSeen := map[string]bool{}
	for _, p := range cfg.Pairs {
		if p.Name == "" {
			return fmt.Errorf("pair with empty name")
		}
		if pairSeen[p.Name] {
			return fmt.Errorf("duplicate pair name %q", p.Name)
		}
		pairSeen[p.Name] = true
		if !seen[p.Source] {
			return fmt.Errorf("pair %q: unknown source connection %q", p.Name, p.Source)
		}
		if !seen[p.Target] {
			return fmt.Errorf("pair %q: unknown target connection %q", p.Name, p.Target)
		}
	}
	return nil
}

// ListConnections returns every configured connection spec.
func (s *Store) ListConnections() []model.ConnectionSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ConnectionSpec, len(s.cfg.Connections))
	for i, c := range s.cfg.Connections {
		out[i] = c.toSpec()
	}
	return out
}

// GetConnection looks up a connection by name.
func (s *Store) GetConnection(name string) (model.ConnectionSpec, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cfg.Connections {
		if c.Name == name {
			return c.toSpec(), true
		}
	}
	return model.ConnectionSpec{}, false
}

// AddConnection appends a new connection, rejecting duplicate names.
func (s *Store) AddConnection(spec model.ConnectionSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cfg.Connections {
		if c.Name == spec.Name {
			return fmt.Errorf("connection %q already exists", spec.Name)
		}
	}
	s.cfg.Connections = append(s.cfg.Connections, ConnectionEntry{
		Name: spec.Name, Engine: string(spec.Engine), Host: spec.Host,
		Port: spec.Port, User: spec.User, Password: spec.Password, Database: spec.Database,
	})
	return s.persist()
}

// RemoveConnection deletes a connection, rejecting removal when any pair
// still references it (source or target).
func (s *Store) RemoveConnection(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.cfg.Pairs {
		if p.Source == name || p.Target == name {
			return fmt.Errorf("connection %q is used by pair %q", name, p.Name)
		}
	}
	for i, c := range s.cfg.Connections {
		if c.Name == name {
			s.cfg.Connections = append(s.cfg.Connections[:i], s.cfg.Connections[i+1:]...)
			return s.persist()
		}
	}
	return fmt.Errorf("connection %q not found", name)
}

// ListPairs returns every configured sync pair.
func (s *Store) ListPairs() []model.PairSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.PairSpec, len(s.cfg.Pairs))
	for i, p := range s.cfg.Pairs {
		out[i] = p.toSpec()
	}
	return out
}

// GetPair looks up a pair by name.
func (s *Store) GetPair(name string) (model.PairSpec, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.cfg.Pairs {
		if p.Name == name {
			return p.toSpec(), true
		}
	}
	return model.PairSpec{}, false
}

// AddPair appends a new pair, rejecting duplicate names.
func (s *Store) AddPair(spec model.PairSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.cfg.Pairs {
		if p.Name == spec.Name {
			return fmt.Errorf("pair %q already exists", spec.Name)
		}
	}
	s.cfg.Pairs = append(s.cfg.Pairs, PairEntry{
		Name: spec.Name, Source: spec.Source, Target: spec.Target,
		SyncSchema: spec.SyncSchema, SyncData: spec.SyncData,
		SyncProcedures: spec.SyncProcedures, SyncTriggers: spec.SyncTriggers,
		IncludeTables: spec.IncludeTables, ExcludeTables: spec.ExcludeTables,
		Enabled: spec.Enabled, LastSyncAt: spec.LastSyncAt,
	})
	return s.persist()
}

// RemovePair deletes a pair by name.
func (s *Store) RemovePair(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.cfg.Pairs {
		if p.Name == name {
			s.cfg.Pairs = append(s.cfg.Pairs[:i], s.cfg.Pairs[i+1:]...)
			return s.persist()
		}
	}
	return fmt.Errorf("pair %q not found", name)
}

// UpdateSyncPairStatus enables or disables a pair.
func (s *Store) UpdateSyncPairStatus(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.cfg.Pairs {
		if p.Name == name {
			s.cfg.Pairs[i].Enabled = enabled
			return s.persist()
		}
	}
	return fmt.Errorf("pair %q not found", name)
}

// UpdateLastSync records that a pair last synced at the given time.
func (s *Store) UpdateLastSync(name string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.cfg.Pairs {
		if p.Name == name {
			s.cfg.Pairs[i].LastSyncAt = at
			return s.persist()
		}
	}
	return fmt.Errorf("pair %q not found", name)
}

// GetSettings returns the current daemon-wide settings.
func (s *Store) GetSettings() model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Settings.toSettings()
}

// UpdateSettings overwrites the daemon-wide settings.
func (s *Store) UpdateSettings(settings model.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Settings = SettingsEntry{
		PollIntervalSeconds:        int(settings.PollInterval / time.Second),
		SchemaCheckIntervalSeconds: int(settings.SchemaCheckInterval / time.Second),
		LogLevel:                   settings.LogLevel,
		MaxRetries:                 settings.MaxRetries,
		RetryDelaySeconds:          int(settings.RetryDelay / time.Second),
	}
	return s.persist()
}

// persist writes the document to a temp file in the same directory and
// renames it into place, so a crash mid-write never leaves a truncated
// config behind. Caller must hold mu.
func (s *Store) persist() error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".dbsyncd-config-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	enc := toml.NewEncoder(tmp)
	if err := enc.Encode(s.cfg); err != nil {
		tmp.Close()
		return fmt.Errorf("encode config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}
