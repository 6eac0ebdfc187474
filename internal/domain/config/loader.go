package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/blockforge/internal/domain/entry"
)

// Loader loads configuration from the filesystem.
type Loader struct {
	// LookupEnv reads the process environment. Values found here take
	// precedence over a .env file next to the config.
	LookupEnv func(string) (string, bool)
}

// NewLoader creates a Loader reading the process environment.
func NewLoader() *Loader {
	return &Loader{LookupEnv: os.LookupEnv}
}

// Load reads, defaults and validates the config at path.
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, NewConfigNotFoundError(path)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(path, data)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	dir := filepath.Dir(abs)

	env, err := l.environment(dir)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv(env)
	cfg.ApplyDefaults(dir)
	cfg.path = abs

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// environment merges the .env file in dir with the process environment.
func (l *Loader) environment(dir string) (map[string]string, error) {
	env := map[string]string{}
	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err == nil {
		values, err := godotenv.Read(envPath)
		if err != nil {
			return nil, NewEnvFileError(envPath, err)
		}
		env = values
	}

	lookup := l.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, key := range []string{EnvS3AccessKey, EnvS3SecretKey, EnvOutputDir} {
		if v, ok := lookup(key); ok {
			env[key] = v
		}
	}
	return env, nil
}

func (c *Config) applyEnv(env map[string]string) {
	if v := strings.TrimSpace(env[EnvS3AccessKey]); v != "" {
		c.Publish.S3.AccessKey = v
	}
	if v := strings.TrimSpace(env[EnvS3SecretKey]); v != "" {
		c.Publish.S3.SecretKey = v
	}
	if v := strings.TrimSpace(env[EnvOutputDir]); v != "" {
		c.OutputDir = v
	}
}

// Parse decodes a config by the extension of path. It applies no defaults.
func Parse(path string, data []byte) (*Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return parseYAML(path, data)
	case ".toml":
		return parseTOML(path, data)
	case ".ini":
		return parseINI(path, data)
	default:
		return nil, NewUnsupportedFormatError(path)
	}
}

func parseYAML(path string, data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, NewYAMLParseError(path, err)
	}
	return &cfg, nil
}

func parseTOML(path string, data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, NewConfigParseError(path, "TOML", err)
	}

	var raw struct {
		Entry interface{} `toml:"entry"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, NewConfigParseError(path, "TOML", err)
	}
	spec, err := entry.FromValue(raw.Entry)
	if err != nil {
		return nil, NewConfigParseError(path, "TOML", err)
	}
	cfg.Entry = spec
	return &cfg, nil
}

func parseINI(path string, data []byte) (*Config, error) {
	file, err := ini.Load(data)
	if err != nil {
		return nil, NewConfigParseError(path, "INI", err)
	}
	fail := func(err error) (*Config, error) {
		return nil, NewConfigParseError(path, "INI", err)
	}

	var cfg Config
	root := file.Section("")
	cfg.Version = root.Key("version").String()
	cfg.Name = root.Key("name").String()
	cfg.OutputCSSFile = root.Key("outputCssFile").String()
	cfg.OutputDir = root.Key("outputDir").String()
	cfg.ProjectDir = root.Key("projectDir").String()

	if root.HasKey("entry") {
		cfg.Entry = entry.List(root.Key("entry").Strings(",")...)
	}
	if sec, err := file.GetSection("entry"); err == nil {
		groups := make([]entry.Group, 0, len(sec.Keys()))
		for _, key := range sec.Keys() {
			groups = append(groups, entry.Group{Name: key.Name(), Paths: key.Strings(",")})
		}
		cfg.Entry = entry.Groups(groups...)
	}

	blocks := file.Section("blocks")
	if blocks.HasKey("extensions") {
		cfg.Blocks.Extensions = blocks.Key("extensions").Strings(",")
	}
	if cfg.Blocks.MaxConcurrency, err = optionalInt(blocks, "maxConcurrency"); err != nil {
		return fail(err)
	}
	if cfg.Blocks.CacheSize, err = optionalInt(blocks, "cacheSize"); err != nil {
		return fail(err)
	}

	opt := file.Section("optimization")
	for key, dst := range map[string]**bool{
		"enabled":       &cfg.Optimization.Enabled,
		"removeUnused":  &cfg.Optimization.RemoveUnused,
		"rewriteIdents": &cfg.Optimization.RewriteIdents,
		"minify":        &cfg.Optimization.Minify,
		"sourceMap":     &cfg.Optimization.SourceMap,
	} {
		if *dst, err = optionalBool(opt, key); err != nil {
			return fail(err)
		}
	}

	assets := file.Section("assets")
	if cfg.Assets.EmitSourceMaps, err = optionalBool(assets, "emitSourceMaps"); err != nil {
		return fail(err)
	}
	if inline, err := optionalBool(assets, "inlineSourceMaps"); err != nil {
		return fail(err)
	} else if inline != nil {
		cfg.Assets.InlineSourceMaps = *inline
	}

	s3 := file.Section("publish.s3")
	cfg.Publish.S3.Endpoint = s3.Key("endpoint").String()
	cfg.Publish.S3.Region = s3.Key("region").String()
	cfg.Publish.S3.Bucket = s3.Key("bucket").String()
	cfg.Publish.S3.Prefix = s3.Key("prefix").String()
	if useSSL, err := optionalBool(s3, "useSSL"); err != nil {
		return fail(err)
	} else if useSSL != nil {
		cfg.Publish.S3.UseSSL = *useSSL
	}

	watch := file.Section("watch")
	for key, dst := range map[string]*Duration{
		"interval": &cfg.Watch.Interval,
		"debounce": &cfg.Watch.Debounce,
	} {
		if !watch.HasKey(key) {
			continue
		}
		d, err := watch.Key(key).Duration()
		if err != nil {
			return fail(fmt.Errorf("watch.%s: %w", key, err))
		}
		*dst = Duration(d)
	}

	return &cfg, nil
}

func optionalInt(sec *ini.Section, key string) (int, error) {
	if !sec.HasKey(key) {
		return 0, nil
	}
	v, err := sec.Key(key).Int()
	if err != nil {
		return 0, fmt.Errorf("%s.%s: %w", sec.Name(), key, err)
	}
	return v, nil
}

func optionalBool(sec *ini.Section, key string) (*bool, error) {
	if !sec.HasKey(key) {
		return nil, nil
	}
	v, err := sec.Key(key).Bool()
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", sec.Name(), key, err)
	}
	return &v, nil
}
