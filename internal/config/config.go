package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Filter names accepted by the compositor's -F flag.
const (
	FilterFSR     = "fsr"
	FilterNearest = "nearest"
	FilterLinear  = "linear"
)

// Backend names accepted by the compositor's --backend flag.
const (
	BackendWayland = "wayland"
	BackendX11     = "x11"
)

// Filters lists the valid upscale filters in menu order.
func Filters() []string { return []string{FilterFSR, FilterNearest, FilterLinear} }

// ResolutionPreset is a named render resolution offered in the tray menu.
type ResolutionPreset struct {
	Name   string
	Width  int
	Height int
}

// ResolutionPresets lists the render resolution presets in menu order.
func ResolutionPresets() []ResolutionPreset {
	return []ResolutionPreset{
		{Name: "720p", Width: 1280, Height: 720},
		{Name: "1080p", Width: 1920, Height: 1080},
		{Name: "1440p", Width: 2560, Height: 1440},
		{Name: "4K", Width: 3840, Height: 2160},
	}
}

// Settings describes how the compositor is launched. It is a plain value:
// consumers receive copies and never observe partial mutation.
type Settings struct {
	RenderWidth  int `toml:"render_width" mapstructure:"render_width"`
	RenderHeight int `toml:"render_height" mapstructure:"render_height"`
	// Output resolution; 0 means native.
	OutputWidth  int `toml:"output_width" mapstructure:"output_width"`
	OutputHeight int `toml:"output_height" mapstructure:"output_height"`

	RefreshRate int    `toml:"refresh_rate" mapstructure:"refresh_rate"`
	Filter      string `toml:"filter" mapstructure:"filter"`
	Fullscreen  bool   `toml:"fullscreen" mapstructure:"fullscreen"`

	Backend         string `toml:"backend" mapstructure:"backend"`
	ForceGrabCursor bool   `toml:"force_grab_cursor" mapstructure:"force_grab_cursor"`
	HDR             bool   `toml:"hdr" mapstructure:"hdr"`
	AdaptiveSync    bool   `toml:"adaptive_sync" mapstructure:"adaptive_sync"`

	AutoRestart bool   `toml:"auto_restart" mapstructure:"auto_restart"`
	ExtraArgs   string `toml:"extra_args" mapstructure:"extra_args"`

	// Command run inside the compositor session, e.g. "steam -gamepadui".
	Command string `toml:"command" mapstructure:"command"`
	// ReadyCommand is launched once the compositor reports readiness. Optional.
	ReadyCommand string `toml:"ready_command" mapstructure:"ready_command"`
}

type LogConfig struct {
	Path       string `toml:"path" mapstructure:"path"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// Config is the top-level TOML structure.
type Config struct {
	// Compositor binary; resolved via PATH when not absolute.
	Compositor string `toml:"compositor" mapstructure:"compositor"`

	// Local control API listen address; empty disables the API.
	APIListen string `toml:"api_listen" mapstructure:"api_listen"`
	// Standalone metrics listen address; empty disables it.
	MetricsListen string `toml:"metrics_listen" mapstructure:"metrics_listen"`
	// History sqlite path; empty disables lifecycle history.
	HistoryPath string `toml:"history_path" mapstructure:"history_path"`

	Log      LogConfig `toml:"log" mapstructure:"log"`
	Settings Settings  `toml:"settings" mapstructure:"settings"`
}

// Default returns a fully initialized configuration matching the shipped presets.
func Default() Config {
	return Config{
		Compositor: "gamescope",
		Settings: Settings{
			RenderWidth:  1280,
			RenderHeight: 720,
			RefreshRate:  60,
			Filter:       FilterFSR,
			Fullscreen:   true,
			Backend:      BackendWayland,
			AutoRestart:  false,
		},
	}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "scopetray", "config.toml")
}

// Load reads the TOML file at path. A missing file is not an error: the
// defaults are returned so callers always hold a usable configuration.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the configuration back to path, creating parent directories.
func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	v := viper.New()
	v.SetConfigType("toml")
	v.Set("compositor", cfg.Compositor)
	v.Set("api_listen", cfg.APIListen)
	v.Set("metrics_listen", cfg.MetricsListen)
	v.Set("history_path", cfg.HistoryPath)
	v.Set("log.path", cfg.Log.Path)
	v.Set("log.max_size_mb", cfg.Log.MaxSizeMB)
	v.Set("log.max_backups", cfg.Log.MaxBackups)
	v.Set("log.max_age_days", cfg.Log.MaxAgeDays)
	v.Set("log.compress", cfg.Log.Compress)
	s := cfg.Settings
	v.Set("settings.render_width", s.RenderWidth)
	v.Set("settings.render_height", s.RenderHeight)
	v.Set("settings.output_width", s.OutputWidth)
	v.Set("settings.output_height", s.OutputHeight)
	v.Set("settings.refresh_rate", s.RefreshRate)
	v.Set("settings.filter", s.Filter)
	v.Set("settings.fullscreen", s.Fullscreen)
	v.Set("settings.backend", s.Backend)
	v.Set("settings.force_grab_cursor", s.ForceGrabCursor)
	v.Set("settings.hdr", s.HDR)
	v.Set("settings.adaptive_sync", s.AdaptiveSync)
	v.Set("settings.auto_restart", s.AutoRestart)
	v.Set("settings.extra_args", s.ExtraArgs)
	v.Set("settings.command", s.Command)
	v.Set("settings.ready_command", s.ReadyCommand)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// Validate rejects values the compositor would refuse.
func (c Config) Validate() error {
	if c.Compositor == "" {
		return fmt.Errorf("compositor binary must not be empty")
	}
	switch c.Settings.Filter {
	case FilterFSR, FilterNearest, FilterLinear:
	default:
		return fmt.Errorf("unknown filter %q", c.Settings.Filter)
	}
	switch c.Settings.Backend {
	case BackendWayland, BackendX11:
	default:
		return fmt.Errorf("unknown backend %q", c.Settings.Backend)
	}
	if c.Settings.RenderWidth <= 0 || c.Settings.RenderHeight <= 0 {
		return fmt.Errorf("render resolution must be positive, got %dx%d",
			c.Settings.RenderWidth, c.Settings.RenderHeight)
	}
	return nil
}

// BuildArgs assembles the compositor argument vector from the settings.
// The supervisor treats the result as opaque.
func (c Config) BuildArgs() []string {
	s := c.Settings
	args := []string{c.Compositor}
	args = append(args,
		"-w", strconv.Itoa(s.RenderWidth),
		"-h", strconv.Itoa(s.RenderHeight),
	)
	if s.OutputWidth > 0 && s.OutputHeight > 0 {
		args = append(args,
			"-W", strconv.Itoa(s.OutputWidth),
			"-H", strconv.Itoa(s.OutputHeight),
		)
	}
	if s.RefreshRate > 0 {
		args = append(args, "-r", strconv.Itoa(s.RefreshRate))
	}
	args = append(args, "-F", s.Filter)
	if s.Fullscreen {
		args = append(args, "-f")
	}
	args = append(args, "--backend", s.Backend)
	if s.ForceGrabCursor {
		args = append(args, "--force-grab-cursor")
	}
	if s.HDR {
		args = append(args, "--hdr-enabled")
	}
	if s.AdaptiveSync {
		args = append(args, "--adaptive-sync")
	}
	if extra := strings.Fields(s.ExtraArgs); len(extra) > 0 {
		args = append(args, extra...)
	}
	if cmd := strings.Fields(s.Command); len(cmd) > 0 {
		args = append(args, "--")
		args = append(args, cmd...)
	}
	return args
}
