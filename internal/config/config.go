package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/samber/lo"
)

const (
	DefaultAddr        = "127.0.0.1:5000"
	DefaultRoot        = "../client"
	RecordingsPrefix   = "/recordings"
	defaultShutdown    = 5 * time.Second
	defaultPollPeriod  = 500 * time.Millisecond
	defaultDebounceFor = 100 * time.Millisecond
)

type Config struct {
	Server     ServerConfig     `toml:"server"`
	Static     StaticConfig     `toml:"static"`
	LiveReload LiveReloadConfig `toml:"livereload"`
	Log        LogConfig        `toml:"log"`
}

type ServerConfig struct {
	Addr            string   `toml:"addr"`
	Debug           bool     `toml:"debug"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

type StaticConfig struct {
	Root   string        `toml:"root"`
	Index  string        `toml:"index"`
	Mounts []MountConfig `toml:"mount"`
}

type MountConfig struct {
	Prefix string `toml:"prefix"`
	Dir    string `toml:"dir"`
}

type LiveReloadConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval Duration `toml:"interval"`
	Debounce Duration `toml:"debounce"`
}

// LogConfig leaves Level and Format empty to follow the debug mode.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Duration is a time.Duration written as a Go duration string in TOML ("500ms").
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            DefaultAddr,
			Debug:           true,
			ShutdownTimeout: Duration(defaultShutdown),
		},
		Static: StaticConfig{
			Root: DefaultRoot,
		},
		LiveReload: LiveReloadConfig{
			Enabled:  true,
			Interval: Duration(defaultPollPeriod),
			Debounce: Duration(defaultDebounceFor),
		},
	}
}

// Load reads a TOML file on top of Default. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := Decode(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}

	return cfg, nil
}

func Decode(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

// LoadDotEnv populates the process environment from a .env file if one exists.
// Variables already set win.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("LISTEN"); ok && v != "" {
		c.Server.Addr = v
	}

	if v, ok := lookup("STATIC_ROOT"); ok && v != "" {
		c.Static.Root = v
	}

	if v, ok := lookup("DEBUG"); ok && v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DEBUG: %w", err)
		}
		c.Server.Debug = debug
	}

	if v, ok := lookup("RECORDINGS_DIR"); ok && v != "" {
		c.SetMount(RecordingsPrefix, v)
	}

	return nil
}

// SetMount adds a mount or replaces the directory of an existing one with the same prefix.
func (c *Config) SetMount(prefix, dir string) {
	_, idx, found := lo.FindIndexOf(c.Static.Mounts, func(m MountConfig) bool {
		return normalizePrefix(m.Prefix) == normalizePrefix(prefix)
	})
	if found {
		c.Static.Mounts[idx].Dir = dir
		return
	}
	c.Static.Mounts = append(c.Static.Mounts, MountConfig{Prefix: prefix, Dir: dir})
}

// ResolvePaths makes relative directories absolute against baseDir.
func (c *Config) ResolvePaths(baseDir string) {
	c.Static.Root = resolve(baseDir, c.Static.Root)
	for i := range c.Static.Mounts {
		c.Static.Mounts[i].Dir = resolve(baseDir, c.Static.Mounts[i].Dir)
	}
}

func resolve(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(baseDir, p))
}

func (c Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is empty"))
	}

	if c.Static.Root == "" {
		errs = append(errs, errors.New("static.root is empty"))
	}

	seen := map[string]bool{"/": true}
	for _, m := range c.Static.Mounts {
		if !strings.HasPrefix(m.Prefix, "/") {
			errs = append(errs, fmt.Errorf("mount prefix %q must start with /", m.Prefix))
			continue
		}
		p := normalizePrefix(m.Prefix)
		if seen[p] {
			errs = append(errs, fmt.Errorf("duplicate mount prefix %q", m.Prefix))
		}
		seen[p] = true
		if m.Dir == "" {
			errs = append(errs, fmt.Errorf("mount %q has no dir", m.Prefix))
		}
	}

	if c.LiveReload.Enabled && c.LiveReload.Interval <= 0 {
		errs = append(errs, errors.New("livereload.interval must be positive"))
	}

	if c.LiveReload.Debounce < 0 {
		errs = append(errs, errors.New("livereload.debounce must not be negative"))
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	if !lo.Contains([]string{"", "text", "json"}, c.Log.Format) {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

func normalizePrefix(prefix string) string {
	return "/" + strings.Trim(prefix, "/")
}
