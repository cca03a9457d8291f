package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

type Config struct {
	Audio        AudioConfig  `json:"audio"`
	Encode       EncodeConfig `json:"encode"`
	OutputDir    string       `json:"output_dir"`
	TimerSeconds int          `json:"timer_seconds"` // 0 disables the auto-stop timer
	Hotkey       string       `json:"hotkey"`
	HotkeyDarwin string       `json:"hotkey_darwin"`
	LogLevel     string       `json:"log_level"`
}

type AudioConfig struct {
	DeviceID   string `json:"device_id"` // empty = system default
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	BlockSize  int    `json:"block_size"` // frames per capture block
}

type EncodeConfig struct {
	Preset string `json:"preset"` // low, medium, high, veryhigh
}

// Load reads the config from disk or returns defaults
func Load() (*Config, error) {
	path := configPath()

	// Default config
	cfg := &Config{
		Audio: AudioConfig{
			DeviceID:   "",
			SampleRate: 44100,
			Channels:   2,
			BlockSize:  1024,
		},
		Encode: EncodeConfig{
			Preset: "medium",
		},
		OutputDir:    "aufnahmen",
		TimerSeconds: 0,
		Hotkey:       "Alt+Space",
		HotkeyDarwin: "Alt+Space",
		LogLevel:     "info",
	}

	// Load existing config if it exists
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path := configPath()

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate rejects capture formats the recorder cannot work with.
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels < 1 {
		return fmt.Errorf("channels must be at least 1, got %d", c.Audio.Channels)
	}
	if c.Audio.BlockSize <= 0 {
		return fmt.Errorf("block_size must be positive, got %d", c.Audio.BlockSize)
	}
	if c.TimerSeconds < 0 {
		return fmt.Errorf("timer_seconds must not be negative, got %d", c.TimerSeconds)
	}
	return nil
}

// PlatformHotkey returns the appropriate hotkey for the current platform
func (c *Config) PlatformHotkey() string {
	if runtime.GOOS == "darwin" && c.HotkeyDarwin != "" {
		return c.HotkeyDarwin
	}
	return c.Hotkey
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "musiksnip", "config.json")
}
