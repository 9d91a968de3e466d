package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/HC91Dev/MultiPlatformPoster/internal/poster"
)

// Preferences are the persisted platform selection and Discord options.
type Preferences struct {
	Enabled      map[poster.Platform]bool
	DiscordNitro bool
	DiscordMode  poster.DiscordMode
}

// DefaultPreferences enables every platform except Instagram, with Discord
// attachments.
func DefaultPreferences() Preferences {
	p := allEnabled()
	p.Enabled[poster.Instagram] = false
	return p
}

func allEnabled() Preferences {
	p := Preferences{Enabled: map[poster.Platform]bool{}}
	for _, platform := range poster.Platforms {
		p.Enabled[platform] = true
	}
	return p
}

// SetDiscordMode selects exactly one Discord mode.
func (p *Preferences) SetDiscordMode(m poster.DiscordMode) {
	p.DiscordMode = m
}

// SetEnabled toggles one platform.
func (p *Preferences) SetEnabled(platform poster.Platform, on bool) {
	if p.Enabled == nil {
		p.Enabled = map[poster.Platform]bool{}
	}
	p.Enabled[platform] = on
}

// Selected lists the enabled platforms in canonical order.
func (p Preferences) Selected() []poster.Platform {
	var out []poster.Platform
	for _, platform := range poster.Platforms {
		if on, ok := p.Enabled[platform]; !ok || on {
			out = append(out, platform)
		}
	}
	return out
}

const (
	keyNitro       = "discord_nitro"
	keyAttachments = "discord_attachments"
	keySeparate    = "discord_separate"
	keyEmbed       = "discord_embed"
)

// MarshalJSON writes the flat flag map keyed by display name ("Twitter"), with
// exactly one Discord mode flag set.
func (p Preferences) MarshalJSON() ([]byte, error) {
	flags := map[string]bool{
		keyNitro:       p.DiscordNitro,
		keyAttachments: p.DiscordMode == poster.DiscordAttachments,
		keySeparate:    p.DiscordMode == poster.DiscordSeparateMessages,
		keyEmbed:       p.DiscordMode == poster.DiscordEmbeds,
	}
	for _, platform := range poster.Platforms {
		on, ok := p.Enabled[platform]
		flags[platform.String()] = !ok || on
	}
	return json.Marshal(flags)
}

// UnmarshalJSON reads the flat flag map. Platform keys match either the
// display name or the lowercase id; absent platforms default to enabled.
// Conflicting Discord flags resolve embed first, then separate.
func (p *Preferences) UnmarshalJSON(data []byte) error {
	var flags map[string]bool
	if err := json.Unmarshal(data, &flags); err != nil {
		return err
	}
	*p = allEnabled()
	for _, platform := range poster.Platforms {
		if on, ok := flags[platform.String()]; ok {
			p.Enabled[platform] = on
		} else if on, ok := flags[string(platform)]; ok {
			p.Enabled[platform] = on
		}
	}
	p.DiscordNitro = flags[keyNitro]
	switch {
	case flags[keyEmbed]:
		p.DiscordMode = poster.DiscordEmbeds
	case flags[keySeparate]:
		p.DiscordMode = poster.DiscordSeparateMessages
	default:
		p.DiscordMode = poster.DiscordAttachments
	}
	return nil
}

// LoadPreferences reads path. A missing file yields the defaults.
func LoadPreferences(path string) (Preferences, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultPreferences(), nil
		}
		return Preferences{}, fmt.Errorf("read preferences: %w", err)
	}
	var p Preferences
	if err := json.Unmarshal(data, &p); err != nil {
		return Preferences{}, fmt.Errorf("parse preferences %s: %w", path, err)
	}
	return p, nil
}

// SavePreferences persists p.
func SavePreferences(path string, p Preferences) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}
