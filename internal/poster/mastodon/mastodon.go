// Package mastodon publishes statuses to a Mastodon instance.
package mastodon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	mastodonapi "github.com/mattn/go-mastodon"

	"github.com/HC91Dev/MultiPlatformPoster/internal/logutil"
	"github.com/HC91Dev/MultiPlatformPoster/internal/poster"
)

const (
	providerName   = "Mastodon"
	requestTimeout = 120 * time.Second
)

// Config contains the settings needed to reach a Mastodon server.
type Config struct {
	Server       string
	AccessToken  string
	ClientID     string
	ClientSecret string
}

// Publisher implements poster.Publisher for Mastodon.
type Publisher struct {
	client *mastodonapi.Client
}

// Option customizes a Publisher.
type Option func(*mastodonapi.Client)

// WithHTTPClient overrides the transport and timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(m *mastodonapi.Client) {
		if c != nil {
			m.Client = *c
		}
	}
}

// New validates cfg and builds the API client. No request is made.
func New(cfg Config, opts ...Option) (*Publisher, error) {
	cfg.Server = strings.TrimRight(strings.TrimSpace(cfg.Server), "/")
	cfg.AccessToken = strings.TrimSpace(cfg.AccessToken)
	if err := poster.RequireFields(providerName, "server", cfg.Server, "access_token", cfg.AccessToken); err != nil {
		return nil, err
	}
	if !strings.Contains(cfg.Server, "://") {
		cfg.Server = "https://" + cfg.Server
	}

	client := mastodonapi.NewClient(&mastodonapi.Config{
		Server:       cfg.Server,
		AccessToken:  cfg.AccessToken,
		ClientID:     strings.TrimSpace(cfg.ClientID),
		ClientSecret: strings.TrimSpace(cfg.ClientSecret),
	})
	client.Timeout = requestTimeout
	for _, opt := range opts {
		opt(client)
	}
	return &Publisher{client: client}, nil
}

// Name returns the platform identifier.
func (p *Publisher) Name() poster.Platform { return poster.Mastodon }

// Publish uploads up to four attachments and posts the status.
func (p *Publisher) Publish(ctx context.Context, req poster.Request, status *poster.Reporter) error {
	files := poster.Truncate(req.Media, poster.MaxMedia(poster.Mastodon))

	var mediaIDs []mastodonapi.ID
	if len(files) > 0 {
		status.Infof("Uploading %d media files to Mastodon...", len(files))
	}
	for i, path := range files {
		name := filepath.Base(path)
		attachment, err := p.uploadMedia(ctx, path, fmt.Sprintf("Image %d", i+1))
		if err != nil {
			status.Warnf("Failed to upload %s: %v", name, err)
			continue
		}
		mediaIDs = append(mediaIDs, attachment.ID)
		logutil.Debugf("mastodon media uploaded: file=%s id=%s", name, attachment.ID)
	}

	toot, err := p.client.PostStatus(ctx, &mastodonapi.Toot{
		Status:   req.Text,
		MediaIDs: mediaIDs,
	})
	if err != nil {
		return fmt.Errorf("post status: %w", err)
	}
	logutil.Debugf("mastodon status posted: id=%s", toot.ID)

	switch {
	case len(files) > 0 && len(mediaIDs) == 0:
		status.Successf("Posted to Mastodon (text only, media upload failed)")
	case len(mediaIDs) > 0:
		status.Successf("Posted to Mastodon with %d media files", len(mediaIDs))
	default:
		status.Successf("Posted to Mastodon")
	}
	return nil
}

func (p *Publisher) uploadMedia(ctx context.Context, path, alt string) (*mastodonapi.Attachment, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, poster.ValidationError{Provider: providerName, Reason: fmt.Sprintf("media %q not found", path)}
		}
		return nil, fmt.Errorf("open media: %w", err)
	}
	defer file.Close()

	attachment, err := p.client.UploadMediaFromMedia(ctx, &mastodonapi.Media{
		File:        file,
		Description: alt,
	})
	if err != nil {
		return nil, fmt.Errorf("upload media: %w", err)
	}
	return attachment, nil
}
