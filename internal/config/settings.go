package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings tune endpoints, timeouts and pacing. Every field is optional.
type Settings struct {
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
	DiscordPause time.Duration `yaml:"discord_pause"`
	RedditPause  time.Duration `yaml:"reddit_pause"`
	// TempDir holds compressed media; empty keeps outputs next to the sources.
	TempDir   string    `yaml:"temp_dir"`
	Endpoints Endpoints `yaml:"endpoints"`
}

// Endpoints override API roots, mostly for self-hosted or test servers.
type Endpoints struct {
	ImgBB          string `yaml:"imgbb"`
	InstagramGraph string `yaml:"instagram_graph"`
	RedditToken    string `yaml:"reddit_token"`
	RedditAPI      string `yaml:"reddit_api"`
}

// DefaultSettings returns the built-in pacing.
func DefaultSettings() Settings {
	return Settings{
		HTTPTimeout:  2 * time.Minute,
		DiscordPause: 500 * time.Millisecond,
		RedditPause:  2 * time.Second,
	}
}

// LoadSettings overlays path onto the defaults. A missing file is not an error.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return DefaultSettings(), fmt.Errorf("parse settings %s: %w", path, err)
	}
	if s.HTTPTimeout < 0 || s.DiscordPause < 0 || s.RedditPause < 0 {
		return DefaultSettings(), fmt.Errorf("parse settings %s: durations must not be negative", path)
	}
	return s, nil
}

// SaveSettings writes s as YAML.
func SaveSettings(path string, s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return writeFile(path, data)
}
