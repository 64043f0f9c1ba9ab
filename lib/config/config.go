// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/saferun/lib/archive"
	"github.com/bureau-foundation/saferun/lib/artifact"
)

// Environment variable names.
const (
	EnvConfig       = "SAFE_CONFIG"
	EnvLogDir       = "SAFE_LOG_DIR"
	EnvSnippetLines = "SAFE_SNIPPET_LINES"
	EnvView         = "SAFE_RUN_VIEW"
	EnvKillGrace    = "SAFE_RUN_KILL_GRACE"
	EnvDrainTimeout = "SAFE_RUN_DRAIN_TIMEOUT"
	EnvFailDir      = "SAFE_FAIL_DIR"
	EnvArchiveDir   = "SAFE_ARCHIVE_DIR"
	EnvCompress     = "SAFE_ARCHIVE_COMPRESS"
)

// Config is the layout of the SAFE_CONFIG file. Each binary loads and
// validates only its own section.
type Config struct {
	// Run configures the supervisor.
	Run RunConfig `yaml:"run"`

	// Archive configures the archival utility.
	Archive ArchiveConfig `yaml:"archive"`
}

// RunConfig configures safe-run.
type RunConfig struct {
	// LogDir is where forensic artifacts are written.
	// Default: .agent/FAIL-LOGS
	LogDir string `yaml:"log_dir"`

	// SnippetLines is how many recent output lines to print to stderr
	// when a run fails or is aborted. 0 disables the tail.
	SnippetLines int `yaml:"snippet_lines"`

	// View selects the artifact rendering: "split" or "merged".
	View string `yaml:"view"`

	// KillGrace is how long an aborted child may keep running after the
	// forwarded signal before it is sent SIGKILL. 0 disables the
	// escalation (a second signal still escalates).
	// Default: 10s
	KillGrace time.Duration `yaml:"kill_grace"`

	// DrainTimeout bounds how long the supervisor keeps reading after
	// the child has exited while no bytes arrive, which only happens
	// when a descendant still holds the output pipes open.
	// Default: 5s
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// ArchiveConfig configures safe-archive.
type ArchiveConfig struct {
	// SourceDir is the capture directory scanned by --all.
	// Default: .agent/FAIL-LOGS
	SourceDir string `yaml:"source_dir"`

	// ArchiveDir is the long-term destination.
	// Default: .agent/FAIL-ARCHIVE
	ArchiveDir string `yaml:"archive_dir"`

	// Compress names the compression method applied after each move.
	// Default: none
	Compress string `yaml:"compress"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			LogDir:       filepath.Join(".agent", "FAIL-LOGS"),
			SnippetLines: 0,
			View:         string(artifact.ViewSplit),
			KillGrace:    10 * time.Second,
			DrainTimeout: 5 * time.Second,
		},
		Archive: ArchiveConfig{
			SourceDir:  filepath.Join(".agent", "FAIL-LOGS"),
			ArchiveDir: filepath.Join(".agent", "FAIL-ARCHIVE"),
			Compress:   "none",
		},
	}
}

// LookupFunc reports the value of an environment variable.
// os.LookupEnv satisfies it.
type LookupFunc func(name string) (string, bool)

// LoadRun resolves safe-run's settings: defaults, the SAFE_CONFIG file,
// then environment overrides. Only the run section is validated, so an
// archive setting never keeps a command from running.
//
// SAFE_SNIPPET_LINES and SAFE_RUN_VIEW only affect what is displayed
// and how the artifact is laid out. An unusable value for either is
// reported on logger and ignored. The same value in the config file is
// an error.
func LoadRun(lookup LookupFunc, logger *slog.Logger) (*RunConfig, error) {
	cfg, err := loadFile(lookup)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := cfg.Run.applyEnv(lookup, logger); err != nil {
		return nil, err
	}
	if err := cfg.Run.Validate(); err != nil {
		return nil, err
	}
	return &cfg.Run, nil
}

// LoadArchive resolves safe-archive's settings the same way LoadRun
// does for safe-run. Run settings are neither parsed from the
// environment nor validated.
func LoadArchive(lookup LookupFunc) (*ArchiveConfig, error) {
	cfg, err := loadFile(lookup)
	if err != nil {
		return nil, err
	}
	cfg.Archive.applyEnv(lookup)
	if err := cfg.Archive.Validate(); err != nil {
		return nil, err
	}
	return &cfg.Archive, nil
}

// loadFile returns the defaults overlaid with the file named by
// SAFE_CONFIG, if any. An empty file leaves the defaults untouched.
func loadFile(lookup LookupFunc) (*Config, error) {
	cfg := Default()
	path := get(lookup, EnvConfig)
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.Run.LogDir = expandVars(cfg.Run.LogDir, lookup)
	cfg.Archive.SourceDir = expandVars(cfg.Archive.SourceDir, lookup)
	cfg.Archive.ArchiveDir = expandVars(cfg.Archive.ArchiveDir, lookup)
	return cfg, nil
}

func (c *RunConfig) applyEnv(lookup LookupFunc, logger *slog.Logger) error {
	if value := get(lookup, EnvLogDir); value != "" {
		c.LogDir = value
	}
	if value := get(lookup, EnvSnippetLines); value != "" {
		lines, err := ParseSnippetLines(value)
		if err != nil {
			logger.Warn("ignoring environment setting", "variable", EnvSnippetLines,
				"error", err, "snippet_lines", c.SnippetLines)
		} else {
			c.SnippetLines = lines
		}
	}
	if value := get(lookup, EnvView); value != "" {
		if _, err := artifact.ParseView(value); err != nil {
			logger.Warn("ignoring environment setting", "variable", EnvView,
				"error", err, "view", c.View)
		} else {
			c.View = value
		}
	}
	if value := get(lookup, EnvKillGrace); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvKillGrace, err)
		}
		c.KillGrace = duration
	}
	if value := get(lookup, EnvDrainTimeout); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDrainTimeout, err)
		}
		c.DrainTimeout = duration
	}
	return nil
}

func (c *ArchiveConfig) applyEnv(lookup LookupFunc) {
	if value := get(lookup, EnvFailDir); value != "" {
		c.SourceDir = value
	}
	if value := get(lookup, EnvArchiveDir); value != "" {
		c.ArchiveDir = value
	}
	if value := get(lookup, EnvCompress); value != "" {
		c.Compress = value
	}
}

// ParseSnippetLines parses a tail length: a non-negative decimal
// integer with no sign.
func ParseSnippetLines(value string) (int, error) {
	lines, err := strconv.ParseUint(value, 10, 31)
	if err != nil {
		return 0, fmt.Errorf("must be a non-negative integer, got %q", value)
	}
	return int(lines), nil
}

// Validate checks every run setting and reports all problems at once.
func (c *RunConfig) Validate() error {
	var errs []error
	if c.LogDir == "" {
		errs = append(errs, fmt.Errorf("run.log_dir is required"))
	}
	if c.SnippetLines < 0 {
		errs = append(errs, fmt.Errorf("run.snippet_lines must not be negative"))
	}
	if _, err := artifact.ParseView(c.View); err != nil {
		errs = append(errs, fmt.Errorf("run.view: %w", err))
	}
	if c.KillGrace < 0 {
		errs = append(errs, fmt.Errorf("run.kill_grace must not be negative"))
	}
	if c.DrainTimeout < 0 {
		errs = append(errs, fmt.Errorf("run.drain_timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// Validate checks every archive setting and reports all problems at
// once.
func (c *ArchiveConfig) Validate() error {
	var errs []error
	if c.SourceDir == "" {
		errs = append(errs, fmt.Errorf("archive.source_dir is required"))
	}
	if c.ArchiveDir == "" {
		errs = append(errs, fmt.Errorf("archive.archive_dir is required"))
	}
	if _, err := archive.ParseMethod(c.Compress); err != nil {
		errs = append(errs, fmt.Errorf("archive.compress: %w", err))
	}
	return errors.Join(errs...)
}

func get(lookup LookupFunc, name string) string {
	if lookup == nil {
		return ""
	}
	value, _ := lookup(name)
	return value
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, lookup LookupFunc) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := get(lookup, parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}
