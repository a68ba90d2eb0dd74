package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration written as a string like "100ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the application configuration.
type Config struct {
	Log     LogConfig     `toml:"log"`
	Scripts ScriptsConfig `toml:"scripts"`
	Scene   SceneConfig   `toml:"scene"`
	Loop    LoopConfig    `toml:"loop"`
}

// LogConfig controls logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `toml:"level" env:"ISOCORE_LOG_LEVEL"`

	// Format is console or json.
	Format string `toml:"format" env:"ISOCORE_LOG_FORMAT"`
}

// ScriptsConfig controls the Lua runtime.
type ScriptsConfig struct {
	// Dir is where behavior scripts are resolved and default scripts found.
	Dir string `toml:"dir" env:"ISOCORE_SCRIPTS_DIR"`

	// Watch reloads edited scripts for newly created components.
	Watch bool `toml:"watch" env:"ISOCORE_SCRIPTS_WATCH"`

	// CallTimeout bounds each call into script.
	CallTimeout Duration `toml:"call_timeout" env:"ISOCORE_SCRIPTS_CALL_TIMEOUT"`
}

// SceneConfig describes the initial scene.
type SceneConfig struct {
	// Archetypes is the YAML archetype file.
	Archetypes string `toml:"archetypes" env:"ISOCORE_SCENE_ARCHETYPES"`

	// Spawn lists the entities created at startup.
	Spawn []SpawnConfig `toml:"spawn"`
}

// SpawnConfig spawns Count entities of one archetype.
type SpawnConfig struct {
	Archetype string `toml:"archetype"`
	Name      string `toml:"name"`
	Count     int    `toml:"count"`
}

// LoopConfig controls the frame loop.
type LoopConfig struct {
	// TickRate is the number of frames per second.
	TickRate int `toml:"tick_rate" env:"ISOCORE_LOOP_TICK_RATE"`

	// Frames stops the loop after that many frames; 0 runs until cancelled.
	Frames int `toml:"frames" env:"ISOCORE_LOOP_FRAMES"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Scripts: ScriptsConfig{
			Dir:         "scripts",
			CallTimeout: Duration{100 * time.Millisecond},
		},
		Loop: LoopConfig{
			TickRate: 60,
		},
	}
}

// Load builds the configuration from defaults, the TOML file at path and the
// environment, then validates it. A missing file is not an error; an empty
// path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		default:
			if err := Parse(path, data, &cfg); err != nil {
				return Config{}, err
			}
		}
	}

	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes TOML data over cfg. Keys absent from data keep their value.
func Parse(source string, data []byte, cfg *Config) error {
	if err := toml.Unmarshal(data, cfg); err != nil {
		perr := &ParseError{Path: source, Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			perr.Line, perr.Column = derr.Position()
		}
		return perr
	}
	return nil
}

// ParseEnv applies ISOCORE_* environment variables to cfg.
func ParseEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

var (
	levels  = []string{"debug", "info", "warn", "error"}
	formats = []string{"console", "json"}
)

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if !slices.Contains(levels, strings.ToLower(c.Log.Level)) {
		errs = append(errs, fmt.Errorf("%w: log.level %q", ErrValidationFailed, c.Log.Level))
	}
	if !slices.Contains(formats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("%w: log.format %q", ErrValidationFailed, c.Log.Format))
	}
	if c.Scripts.CallTimeout.Duration < 0 {
		errs = append(errs, fmt.Errorf("%w: scripts.call_timeout is negative", ErrValidationFailed))
	}
	if c.Loop.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("%w: loop.tick_rate must be positive", ErrValidationFailed))
	}
	if c.Loop.Frames < 0 {
		errs = append(errs, fmt.Errorf("%w: loop.frames is negative", ErrValidationFailed))
	}
	for i, s := range c.Scene.Spawn {
		if s.Archetype == "" {
			errs = append(errs, fmt.Errorf("%w: scene.spawn[%d] has no archetype", ErrValidationFailed, i))
		}
		if s.Count < 0 {
			errs = append(errs, fmt.Errorf("%w: scene.spawn[%d].count is negative", ErrValidationFailed, i))
		}
	}
	if len(c.Scene.Spawn) > 0 && c.Scene.Archetypes == "" {
		errs = append(errs, fmt.Errorf("%w: scene.spawn needs scene.archetypes", ErrValidationFailed))
	}
	return errors.Join(errs...)
}

// FrameDuration returns the fixed frame step.
func (c Config) FrameDuration() time.Duration {
	return time.Second / time.Duration(c.Loop.TickRate)
}
