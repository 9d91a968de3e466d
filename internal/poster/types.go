package poster

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Platform identifies a publishing target.
type Platform string

const (
	Twitter   Platform = "twitter"
	Bluesky   Platform = "bluesky"
	Discord   Platform = "discord"
	Instagram Platform = "instagram"
	Reddit    Platform = "reddit"
	Mastodon  Platform = "mastodon"
)

// Platforms lists every supported target in display order.
var Platforms = []Platform{Twitter, Bluesky, Discord, Instagram, Reddit, Mastodon}

var displayNames = map[Platform]string{
	Twitter:   "Twitter",
	Bluesky:   "Bluesky",
	Discord:   "Discord",
	Instagram: "Instagram",
	Reddit:    "Reddit",
	Mastodon:  "Mastodon",
}

// String returns the human readable platform name used in status lines.
func (p Platform) String() string {
	if name, ok := displayNames[p]; ok {
		return name
	}
	return string(p)
}

// ParsePlatform resolves a case-insensitive platform name. "x" is accepted for Twitter.
func ParsePlatform(raw string) (Platform, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "x" {
		return Twitter, nil
	}
	for _, p := range Platforms {
		if string(p) == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("unsupported platform %q", raw)
}

// DiscordMode selects how Discord receives media. Exactly one mode is active.
type DiscordMode int

const (
	DiscordAttachments DiscordMode = iota
	DiscordSeparateMessages
	DiscordEmbeds
)

func (m DiscordMode) String() string {
	switch m {
	case DiscordSeparateMessages:
		return "separate"
	case DiscordEmbeds:
		return "embeds"
	default:
		return "attachments"
	}
}

// ParseDiscordMode accepts the names printed by DiscordMode.String.
func ParseDiscordMode(raw string) (DiscordMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "attachments", "attachment":
		return DiscordAttachments, nil
	case "separate", "separate-messages", "messages":
		return DiscordSeparateMessages, nil
	case "embeds", "embed":
		return DiscordEmbeds, nil
	}
	return DiscordAttachments, fmt.Errorf("unknown discord mode %q (want attachments, separate or embeds)", raw)
}

// Post is one piece of content to cross-post.
type Post struct {
	Text  string
	Media []string
	// ScheduledAt is the local time to start publishing; zero means now.
	ScheduledAt time.Time
}

// Request is what a publisher receives: the text plus media already adapted for its platform.
type Request struct {
	Text        string
	Media       []string
	DiscordMode DiscordMode
}

// Publisher abstracts a social network that can publish content.
//
// Publish reports progress through status and returns an error only when the
// platform step as a whole failed.
type Publisher interface {
	Name() Platform
	Publish(ctx context.Context, req Request, status *Reporter) error
}
