// Package config loads dmearchive settings from YAML, the environment and
// an optional .env file.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eykd/dmearchive/internal/dme"
	"github.com/eykd/dmearchive/internal/hierarchy"
	"github.com/eykd/dmearchive/internal/naming"
)

// DefaultPath is the config file read when --config is not given.
const DefaultPath = "dmearchive.yml"

// Config holds all dmearchive settings.
type Config struct {
	// Convention selects the naming rules and archive layout: ccrsf, cmm,
	// scaf or hitif.
	Convention string         `yaml:"convention"`
	Commands   dme.Commands   `yaml:"commands"`
	Timeout    string         `yaml:"timeout"`
	MaxErrors  int            `yaml:"max_errors"`
	CacheSize  int            `yaml:"cache_size"`
	Archive    ArchiveConfig  `yaml:"archive"`
	Naming     NamingConfig   `yaml:"naming"`
	Tars       TarsConfig     `yaml:"tars"`
	Dirs       DirsConfig     `yaml:"dirs"`
	Metadata   MetadataConfig `yaml:"metadata"`
	Notify     NotifyConfig   `yaml:"notify"`
	Logging    LoggingConfig  `yaml:"logging"`
}

// ArchiveConfig overrides the layout of the selected convention.
type ArchiveConfig struct {
	// Base replaces the template base path when set.
	Base string `yaml:"base"`
}

// NamingConfig extends the built-in naming tables.
type NamingConfig struct {
	// PINames are consulted before the built-in entries.
	PINames           []naming.NameEntry `yaml:"pi_names"`
	UnassignedMarkers []string           `yaml:"unassigned_markers"`
}

// TarsConfig configures the tar manifest pipeline.
type TarsConfig struct {
	// Exclude lists substrings that exclude a member outright.
	Exclude []string `yaml:"exclude"`
}

// MatchRule restricts and types the children of directories named Parent.
type MatchRule struct {
	Parent  string `yaml:"parent"`
	Pattern string `yaml:"pattern"`
	Type    string `yaml:"type"`
}

// DirsConfig configures the directory walk pipeline.
type DirsConfig struct {
	// Hierarchy maps a directory name to the only child paths, relative to
	// the project directory, that are walked below it.
	Hierarchy map[string][]string `yaml:"hierarchy"`
	Match     []MatchRule         `yaml:"match"`
}

// MetadataConfig points at externally supplied metadata.
type MetadataConfig struct {
	CSV       string `yaml:"csv"`
	KeyColumn string `yaml:"key_column"`
}

// NotifyConfig configures e-mail notification. An empty command disables it.
type NotifyConfig struct {
	Command    string   `yaml:"command"`
	Recipients []string `yaml:"recipients"`
}

// LoggingConfig configures the run log.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	FilePrefix string `yaml:"file_prefix"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Convention: "ccrsf",
		Commands:   dme.DefaultCommands(),
		MaxErrors:  dme.DefaultMaxErrors,
		CacheSize:  4096,
		Naming: NamingConfig{
			UnassignedMarkers: append([]string(nil), naming.DefaultUnassignedMarkers...),
		},
		Tars: TarsConfig{
			Exclude: []string{"10X", "Phix", "PhiX", "demux", "demultiplex"},
		},
		Dirs: DirsConfig{
			Hierarchy: map[string][]string{
				"sample-data": {"sample-data/Latitude_runs", "sample-data/screening_images"},
			},
			Match: []MatchRule{
				{Parent: "Latitude_runs", Pattern: `^\d{8}_\d{4}`, Type: string(hierarchy.Run)},
			},
		},
		Metadata: MetadataConfig{KeyColumn: "project_id"},
		Logging:  LoggingConfig{Level: "info", FilePrefix: "dmearchive_"},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DME_REGISTER_COLLECTION_CMD"); v != "" {
		c.Commands.RegisterCollection = v
	}
	if v := os.Getenv("DME_REGISTER_DATAOBJECT_CMD"); v != "" {
		c.Commands.RegisterDataObject = v
	}
	if v := os.Getenv("DME_GET_DATAOBJECT_CMD"); v != "" {
		c.Commands.GetDataObject = v
	}
	if v := os.Getenv("DME_NOTIFY_CMD"); v != "" {
		c.Notify.Command = v
	}
	if v := os.Getenv("DME_MAX_ERRORS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxErrors = n
		}
	}
	if v := os.Getenv("DME_TIMEOUT"); v != "" {
		c.Timeout = v
	}
}

// GetTimeout returns the registration command timeout; zero means none.
func (c *Config) GetTimeout() time.Duration {
	if c.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// ValidConventions lists the supported conventions.
var ValidConventions = []string{"ccrsf", "cmm", "scaf", "hitif"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validConvention := false
	for _, v := range ValidConventions {
		if c.Convention == v {
			validConvention = true
			break
		}
	}
	if !validConvention {
		return fmt.Errorf("invalid convention: %s (valid: %v)", c.Convention, ValidConventions)
	}
	if c.Commands.RegisterCollection == "" || c.Commands.RegisterDataObject == "" || c.Commands.GetDataObject == "" {
		return fmt.Errorf("registration commands must not be empty")
	}
	if c.Timeout != "" {
		d, err := time.ParseDuration(c.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
		}
		if d < 0 {
			return fmt.Errorf("timeout must not be negative")
		}
	}
	if c.MaxErrors < 0 {
		return fmt.Errorf("max_errors must not be negative")
	}
	for _, m := range c.Dirs.Match {
		if _, err := regexp.Compile(m.Pattern); err != nil {
			return fmt.Errorf("match rule for %q: %w", m.Parent, err)
		}
		if m.Type == "" {
			continue
		}
		if _, err := hierarchy.ParseCollectionType(m.Type); err != nil {
			return fmt.Errorf("match rule for %q: %w", m.Parent, err)
		}
	}
	if _, err := c.Template(); err != nil {
		return err
	}
	return nil
}

// Template returns the archive layout for the convention.
func (c *Config) Template() (hierarchy.Template, error) {
	tmpl, err := hierarchy.Preset(c.Convention)
	if err != nil {
		return hierarchy.Template{}, err
	}
	if c.Archive.Base != "" {
		tmpl.Base = c.Archive.Base
	}
	return tmpl, tmpl.Validate()
}

// Rules returns the naming rules for the convention.
func (c *Config) Rules() naming.RuleSet {
	switch c.Convention {
	case "cmm":
		return naming.DirectoryRules()
	case "scaf":
		return naming.SCAFRules()
	}
	return naming.CCRSFRules()
}

// NameTable returns the configured PI names ahead of the built-in ones.
func (c *Config) NameTable() *naming.NameTable {
	return naming.NewNameTable(naming.DefaultPITable...).With(c.Naming.PINames...)
}
