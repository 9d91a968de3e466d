// Package discord publishes posts through a Discord webhook.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/HC91Dev/MultiPlatformPoster/internal/imghost"
	"github.com/HC91Dev/MultiPlatformPoster/internal/poster"
)

const (
	providerName = "Discord"

	// DefaultPause spaces out messages in separate-messages mode.
	DefaultPause   = 500 * time.Millisecond
	requestTimeout = 120 * time.Second
)

// ImageHost turns a local image into a public URL.
type ImageHost interface {
	Upload(ctx context.Context, path string) (string, error)
}

// ImageShrinker compresses an image below a byte budget.
type ImageShrinker interface {
	Compress(src string, maxBytes int64) (string, error)
}

// Config carries the webhook.
type Config struct {
	WebhookURL string
}

// Publisher implements poster.Publisher for a Discord webhook.
type Publisher struct {
	webhookURL string
	client     *http.Client
	host       ImageHost
	shrinker   ImageShrinker
	pause      time.Duration
}

// Option customizes a Publisher.
type Option func(*Publisher)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Publisher) {
		if c != nil {
			p.client = c
		}
	}
}

// WithImageHost enables embeds mode. Without a host, embeds degrade to a
// single attachment.
func WithImageHost(h ImageHost) Option {
	return func(p *Publisher) { p.host = h }
}

// WithShrinker compresses images over the host's size ceiling before upload.
func WithShrinker(s ImageShrinker) Option {
	return func(p *Publisher) { p.shrinker = s }
}

// WithPause sets the delay between separate messages.
func WithPause(d time.Duration) Option {
	return func(p *Publisher) { p.pause = d }
}

// New validates cfg. No request is made.
func New(cfg Config, opts ...Option) (*Publisher, error) {
	url := strings.TrimSpace(cfg.WebhookURL)
	if err := poster.RequireFields(providerName, "webhook_url", url); err != nil {
		return nil, err
	}
	p := &Publisher{
		webhookURL: url,
		client:     &http.Client{Timeout: requestTimeout},
		pause:      DefaultPause,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns the platform identifier.
func (p *Publisher) Name() poster.Platform { return poster.Discord }

// Publish sends the post using the requested Discord mode.
func (p *Publisher) Publish(ctx context.Context, req poster.Request, status *poster.Reporter) error {
	files := poster.Truncate(req.Media, poster.MaxMedia(poster.Discord))
	if len(files) == 0 {
		if err := p.sendJSON(ctx, message{Content: req.Text}); err != nil {
			return err
		}
		status.Successf("Posted to Discord")
		return nil
	}

	switch req.DiscordMode {
	case poster.DiscordEmbeds:
		if p.host == nil {
			status.Failf("Discord embeds require imgBB API key to be configured")
			status.Infof("Please configure imgBB in settings to use Discord embeds")
			status.Infof("Falling back to attachment mode...")
			return p.publishAttachments(ctx, req.Text, files[:1], status)
		}
		return p.publishEmbeds(ctx, req.Text, files, status)
	case poster.DiscordSeparateMessages:
		return p.publishSeparate(ctx, req.Text, files, status)
	default:
		return p.publishAttachments(ctx, req.Text, files, status)
	}
}

func (p *Publisher) publishEmbeds(ctx context.Context, text string, files []string, status *poster.Reporter) error {
	status.Infof("Using Discord embeds mode (uploading to imgBB)...")
	var embeds []embed
	for _, path := range files {
		name := filepath.Base(path)
		if !poster.IsImage(path) {
			status.Warnf("Skipping %s - Discord embeds only support images", name)
			continue
		}
		upload := path
		if info, err := os.Stat(path); err == nil && info.Size() > imghost.MaxUploadBytes && p.shrinker != nil {
			status.Infof("Compressing %s for imgBB (>32MB)...", name)
			if shrunk, err := p.shrinker.Compress(path, imghost.MaxUploadBytes); err == nil {
				upload = shrunk
			}
		}

		status.Infof("Uploading %s to imgBB for Discord embed...", filepath.Base(upload))
		url, err := p.host.Upload(ctx, upload)
		if err != nil {
			status.Failf("imgBB upload failed: %v", err)
			continue
		}
		embeds = append(embeds, embed{Image: embedImage{URL: url}})
		status.Successf("Prepared embed %d/%d", len(embeds), poster.MaxMedia(poster.Discord))
	}

	if len(embeds) == 0 {
		if err := p.sendJSON(ctx, message{Content: text}); err != nil {
			return err
		}
		status.Successf("Posted to Discord (text only, no images could be embedded)")
		return nil
	}
	if err := p.sendJSON(ctx, message{Content: text, Embeds: embeds}); err != nil {
		return err
	}
	status.Successf("Posted to Discord with %d embedded images", len(embeds))
	return nil
}

func (p *Publisher) publishSeparate(ctx context.Context, text string, files []string, status *poster.Reporter) error {
	status.Infof("Sending %d files as separate Discord messages...", len(files))
	if text != "" {
		if err := p.sendJSON(ctx, message{Content: text}); err != nil {
			status.Failf("Discord text message failed: %v", err)
		} else {
			status.Successf("Posted text to Discord")
		}
		if err := poster.Pause(ctx, p.pause); err != nil {
			return err
		}
	}

	sent := 0
	for i, path := range files {
		name := filepath.Base(path)
		err := p.sendMultipart(ctx,
			[]field{{name: "content", value: "📎 " + name}},
			[]filePart{{field: "file", path: path}},
		)
		var apiErr poster.APIError
		switch {
		case err == nil:
			sent++
			status.Successf("Sent file %d/%d: %s", i+1, len(files), name)
		case errors.As(err, &apiErr):
			status.Failf("Failed to send %s: HTTP %d", name, apiErr.StatusCode)
		default:
			status.Failf("Error sending %s: %v", name, err)
		}
		if i < len(files)-1 {
			if err := poster.Pause(ctx, p.pause); err != nil {
				return err
			}
		}
	}

	if sent == 0 {
		return fmt.Errorf("0/%d files sent", len(files))
	}
	status.Successf("Posted to Discord: %d/%d files sent", sent, len(files))
	return nil
}

func (p *Publisher) publishAttachments(ctx context.Context, text string, files []string, status *poster.Reporter) error {
	status.Infof("Uploading %d files to Discord (attachments mode)...", len(files))

	var parts []filePart
	for i, path := range files {
		name := filepath.Base(path)
		f, err := os.Open(path)
		if err != nil {
			status.Failf("Failed to open %s: %v", name, err)
			continue
		}
		_ = f.Close()
		parts = append(parts, filePart{field: fmt.Sprintf("files[%d]", len(parts)), path: path})
		status.Infof("Prepared file %d: %s", i+1, name)
	}

	if len(parts) == 0 {
		if err := p.sendJSON(ctx, message{Content: text}); err != nil {
			return err
		}
		status.Successf("Posted to Discord (text only)")
		return nil
	}

	payload, err := jsonField("payload_json", message{Content: text})
	if err != nil {
		return err
	}
	err = p.sendMultipart(ctx, []field{payload}, parts)
	if err == nil {
		status.Successf("Posted to Discord with %d attachments", len(parts))
		return nil
	}
	if len(parts) < 2 {
		return err
	}

	var apiErr poster.APIError
	if errors.As(err, &apiErr) {
		status.Failf("Discord failed: HTTP %d", apiErr.StatusCode)
		if apiErr.Message != "" {
			status.Infof("Error: %s", apiErr.Message)
		}
	} else {
		status.Failf("Discord failed: %v", err)
	}

	status.Infof("Retrying with single file attachment...")
	retryErr := p.sendMultipart(ctx,
		[]field{{name: "content", value: text}},
		[]filePart{{field: "file", path: parts[0].path}},
	)
	status.Infof("Tip: Enable 'Use Discord embeds' or 'Send as separate messages' for multiple images")
	if retryErr != nil {
		return fmt.Errorf("single attachment fallback: %w", retryErr)
	}
	status.Successf("Posted to Discord with 1 attachment (fallback)")
	return nil
}

func jsonField(name string, v any) (field, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return field{}, fmt.Errorf("encode %s: %w", name, err)
	}
	return field{name: name, value: string(raw)}, nil
}
