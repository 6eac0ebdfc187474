// Package config loads and validates blockforge project configuration.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/blockforge/internal/domain/entry"
	"github.com/felixgeelhaar/blockforge/internal/domain/optimizer"
)

// Default values applied by Loader.
const (
	DefaultFileName      = "blockforge.yaml"
	DefaultVersion       = "v1"
	DefaultOutputCSSFile = "css-blocks.css"
	DefaultOutputDir     = "dist"
	DefaultCacheSize     = 256
	DefaultConcurrency   = 8
	DefaultWatchInterval = 500 * time.Millisecond
	DefaultWatchDebounce = 200 * time.Millisecond
)

// Environment variables that override file values.
const (
	EnvS3AccessKey = "BLOCKFORGE_S3_ACCESS_KEY"
	EnvS3SecretKey = "BLOCKFORGE_S3_SECRET_KEY"
	EnvOutputDir   = "BLOCKFORGE_OUTPUT_DIR"
)

// Config is a blockforge project configuration.
type Config struct {
	Version       string                `yaml:"version" toml:"version"`
	Name          string                `yaml:"name,omitempty" toml:"name,omitempty"`
	OutputCSSFile string                `yaml:"outputCssFile,omitempty" toml:"outputCssFile,omitempty"`
	OutputDir     string                `yaml:"outputDir,omitempty" toml:"outputDir,omitempty"`
	ProjectDir    string                `yaml:"projectDir,omitempty" toml:"projectDir,omitempty"`
	Entry         entry.Spec            `yaml:"entry" toml:"-"`
	Blocks        BlocksConfig          `yaml:"blocks,omitempty" toml:"blocks,omitempty"`
	Optimization  optimizer.UserOptions `yaml:"optimization,omitempty" toml:"optimization,omitempty"`
	Assets        AssetsConfig          `yaml:"assets,omitempty" toml:"assets,omitempty"`
	Publish       PublishConfig         `yaml:"publish,omitempty" toml:"publish,omitempty"`
	Watch         WatchConfig           `yaml:"watch,omitempty" toml:"watch,omitempty"`

	path string
}

// BlocksConfig controls block discovery.
type BlocksConfig struct {
	Extensions     []string `yaml:"extensions,omitempty" toml:"extensions,omitempty"`
	MaxConcurrency int      `yaml:"maxConcurrency,omitempty" toml:"maxConcurrency,omitempty"`
	CacheSize      int      `yaml:"cacheSize,omitempty" toml:"cacheSize,omitempty"`
}

// AssetsConfig controls how artifacts are written.
type AssetsConfig struct {
	EmitSourceMaps   *bool `yaml:"emitSourceMaps,omitempty" toml:"emitSourceMaps,omitempty"`
	InlineSourceMaps bool  `yaml:"inlineSourceMaps,omitempty" toml:"inlineSourceMaps,omitempty"`
}

// ShouldEmitSourceMaps reports whether source maps are written. It defaults
// to true.
func (a AssetsConfig) ShouldEmitSourceMaps() bool {
	return a.EmitSourceMaps == nil || *a.EmitSourceMaps
}

// PublishConfig controls artifact publishing.
type PublishConfig struct {
	S3 S3Config `yaml:"s3,omitempty" toml:"s3,omitempty"`
}

// S3Config locates an S3-compatible bucket. Credentials come from the
// environment only.
type S3Config struct {
	Endpoint  string `yaml:"endpoint,omitempty" toml:"endpoint,omitempty"`
	Region    string `yaml:"region,omitempty" toml:"region,omitempty"`
	Bucket    string `yaml:"bucket,omitempty" toml:"bucket,omitempty"`
	Prefix    string `yaml:"prefix,omitempty" toml:"prefix,omitempty"`
	UseSSL    bool   `yaml:"useSSL,omitempty" toml:"useSSL,omitempty"`
	AccessKey string `yaml:"-" toml:"-"`
	SecretKey string `yaml:"-" toml:"-"`
}

// Enabled reports whether publishing is configured.
func (s S3Config) Enabled() bool {
	return s.Endpoint != "" && s.Bucket != ""
}

// WatchConfig controls the polling watcher.
type WatchConfig struct {
	Interval Duration `yaml:"interval,omitempty" toml:"interval,omitempty"`
	Debounce Duration `yaml:"debounce,omitempty" toml:"debounce,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("500ms").
type Duration time.Duration

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String formats the duration.
func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// MarshalYAML formats the duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string { return c.path }

// OutputPath returns the path of the CSS artifact.
func (c *Config) OutputPath() string {
	return filepath.Join(c.OutputDir, c.OutputCSSFile)
}

// ApplyDefaults fills unset fields. Relative directories resolve against dir.
func (c *Config) ApplyDefaults(dir string) {
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.OutputCSSFile == "" {
		c.OutputCSSFile = DefaultOutputCSSFile
	}
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	switch {
	case c.ProjectDir == "":
		c.ProjectDir = dir
	case !filepath.IsAbs(c.ProjectDir):
		c.ProjectDir = filepath.Join(dir, c.ProjectDir)
	}
	if !filepath.IsAbs(c.OutputDir) {
		c.OutputDir = filepath.Join(c.ProjectDir, c.OutputDir)
	}
	if c.Blocks.MaxConcurrency == 0 {
		c.Blocks.MaxConcurrency = DefaultConcurrency
	}
	if c.Blocks.CacheSize == 0 {
		c.Blocks.CacheSize = DefaultCacheSize
	}
	if c.Watch.Interval == 0 {
		c.Watch.Interval = Duration(DefaultWatchInterval)
	}
	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = Duration(DefaultWatchDebounce)
	}
}
