package dispatch

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/HC91Dev/MultiPlatformPoster/internal/config"
	"github.com/HC91Dev/MultiPlatformPoster/internal/imghost"
	"github.com/HC91Dev/MultiPlatformPoster/internal/poster"
	"github.com/HC91Dev/MultiPlatformPoster/internal/poster/bluesky"
	"github.com/HC91Dev/MultiPlatformPoster/internal/poster/discord"
	"github.com/HC91Dev/MultiPlatformPoster/internal/poster/instagram"
	"github.com/HC91Dev/MultiPlatformPoster/internal/poster/mastodon"
	"github.com/HC91Dev/MultiPlatformPoster/internal/poster/reddit"
	"github.com/HC91Dev/MultiPlatformPoster/internal/poster/twitter"
)

// NewBuilder returns the production Builder configured by settings.
func NewBuilder(settings config.Settings) Builder {
	client := &http.Client{Timeout: settings.HTTPTimeout}
	if settings.HTTPTimeout <= 0 {
		client = nil
	}

	return func(p poster.Platform, creds config.Credentials, tools Tools) (poster.Publisher, error) {
		v := func(section, field string) string { return creds.Value(section, field) }

		switch p {
		case poster.Twitter:
			return twitter.New(twitter.Config{
				APIKey:       v("twitter", "api_key"),
				APISecret:    v("twitter", "api_secret"),
				BearerToken:  v("twitter", "bearer_token"),
				AccessToken:  v("twitter", "access_token"),
				AccessSecret: v("twitter", "access_secret"),
			}, twitter.WithHTTPClient(client))

		case poster.Bluesky:
			return bluesky.New(bluesky.Config{
				Handle:   v("bluesky", "handle"),
				Password: v("bluesky", "password"),
				PDSURL:   v("bluesky", "pds_url"),
			}, bluesky.WithHTTPClient(client))

		case poster.Discord:
			opts := []discord.Option{
				discord.WithHTTPClient(client),
				discord.WithPause(settings.DiscordPause),
			}
			if tools.Images != nil {
				opts = append(opts, discord.WithShrinker(tools.Images))
			}
			if host, err := imageHost(creds, settings, client); err == nil {
				opts = append(opts, discord.WithImageHost(host))
			}
			return discord.New(discord.Config{WebhookURL: v("discord", "webhook_url")}, opts...)

		case poster.Instagram:
			var host instagram.ImageHost
			if h, err := imageHost(creds, settings, client); err == nil {
				host = h
			}
			return instagram.New(instagram.Config{
				AccessToken: v("instagram", "access_token"),
				AccountID:   v("instagram", "account_id"),
				GraphURL:    settings.Endpoints.InstagramGraph,
			}, host, instagram.WithHTTPClient(client))

		case poster.Reddit:
			opts := []reddit.Option{
				reddit.WithHTTPClient(client),
				reddit.WithEndpoints(settings.Endpoints.RedditToken, settings.Endpoints.RedditAPI),
				reddit.WithPause(settings.RedditPause),
			}
			if tools.Videos != nil {
				opts = append(opts, reddit.WithPosterFramer(tools.Videos))
			}
			return reddit.New(reddit.Config{
				ClientID:     v("reddit", "client_id"),
				ClientSecret: v("reddit", "client_secret"),
				Username:     v("reddit", "username"),
				Password:     v("reddit", "password"),
				UserAgent:    v("reddit", "user_agent"),
				Subreddits:   []string{v("reddit", "subreddits")},
			}, opts...)

		case poster.Mastodon:
			return mastodon.New(mastodon.Config{
				Server:       v("mastodon", "server"),
				AccessToken:  v("mastodon", "access_token"),
				ClientID:     v("mastodon", "client_id"),
				ClientSecret: v("mastodon", "client_secret"),
			}, mastodon.WithHTTPClient(client))
		}
		return nil, fmt.Errorf("%w: no publisher for %q", poster.ErrUnsupported, p)
	}
}

func imageHost(creds config.Credentials, settings config.Settings, client *http.Client) (*imghost.Uploader, error) {
	opts := []imghost.Option{imghost.WithHTTPClient(client)}
	if ep := strings.TrimSpace(settings.Endpoints.ImgBB); ep != "" {
		opts = append(opts, imghost.WithEndpoint(ep))
	}
	return imghost.New(creds.Value("imgbb", "api_key"), opts...)
}
