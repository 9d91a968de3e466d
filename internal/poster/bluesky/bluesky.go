// Package bluesky publishes posts to Bluesky over XRPC.
package bluesky

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"

	"github.com/HC91Dev/MultiPlatformPoster/internal/logutil"
	"github.com/HC91Dev/MultiPlatformPoster/internal/poster"
)

const (
	// DefaultPDSURL is used when no personal data server is configured.
	DefaultPDSURL = "https://bsky.social"

	providerName   = "Bluesky"
	requestTimeout = 30 * time.Second
	userAgent      = "multipost/1.0"
)

// Config carries the account login.
type Config struct {
	Handle   string
	Password string
	PDSURL   string
}

// Publisher implements poster.Publisher for Bluesky.
type Publisher struct {
	cfg    Config
	client *xrpc.Client
	now    func() time.Time
}

// Option customizes a Publisher.
type Option func(*Publisher)

// WithHTTPClient overrides the HTTP client used for XRPC calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Publisher) {
		if c != nil {
			p.client.Client = c
		}
	}
}

// New validates cfg. Login happens on the first Publish.
func New(cfg Config, opts ...Option) (*Publisher, error) {
	cfg.Handle = strings.TrimSpace(cfg.Handle)
	cfg.PDSURL = strings.TrimRight(strings.TrimSpace(cfg.PDSURL), "/")
	if cfg.PDSURL == "" {
		cfg.PDSURL = DefaultPDSURL
	}
	if err := poster.RequireFields(providerName, "handle", cfg.Handle, "password", cfg.Password); err != nil {
		return nil, err
	}

	ua := userAgent
	p := &Publisher{
		cfg: cfg,
		client: &xrpc.Client{
			Client:    &http.Client{Timeout: requestTimeout},
			Host:      cfg.PDSURL,
			UserAgent: &ua,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns the platform identifier.
func (p *Publisher) Name() poster.Platform { return poster.Bluesky }

func (p *Publisher) login(ctx context.Context) error {
	if p.client.Auth != nil {
		return nil
	}
	session, err := atproto.ServerCreateSession(ctx, p.client, &atproto.ServerCreateSession_Input{
		Identifier: p.cfg.Handle,
		Password:   p.cfg.Password,
	})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	p.client.Auth = &xrpc.AuthInfo{
		AccessJwt:  session.AccessJwt,
		RefreshJwt: session.RefreshJwt,
		Handle:     session.Handle,
		Did:        session.Did,
	}
	logutil.Debugf("bluesky session created: did=%s", session.Did)
	return nil
}

// Publish logs in, uploads up to four images and creates one post.
func (p *Publisher) Publish(ctx context.Context, req poster.Request, status *poster.Reporter) error {
	if err := p.login(ctx); err != nil {
		return err
	}

	post := &bsky.FeedPost{
		CreatedAt: p.now().UTC().Format(time.RFC3339),
		Text:      req.Text,
	}

	media := poster.Truncate(req.Media, poster.MaxMedia(poster.Bluesky))
	if len(media) > 0 {
		status.Infof("Uploading %d images to Bluesky...", len(media))
		limits, _ := poster.LimitsFor(poster.Bluesky, false)

		var images []*bsky.EmbedImages_Image
		for i, path := range media {
			name := filepath.Base(path)
			info, err := os.Stat(path)
			if err != nil {
				status.Warnf("Failed to upload %s: %v", name, err)
				continue
			}
			if info.Size() > limits.MaxImageBytes {
				status.Warnf("Skipping %s - too large for Bluesky", name)
				continue
			}
			if !poster.IsImage(path) {
				status.Warnf("Skipping %s - Bluesky only supports images", name)
				continue
			}

			status.Infof("Uploading image %d/%d...", i+1, len(media))
			blob, err := p.uploadImage(ctx, path)
			if err != nil {
				status.Warnf("Failed to upload %s: %v", name, err)
				continue
			}
			images = append(images, &bsky.EmbedImages_Image{
				Alt:   fmt.Sprintf("Image %d", i+1),
				Image: blob,
			})
		}

		if len(images) > 0 {
			status.Infof("Posting with %d images...", len(images))
			post.Embed = &bsky.FeedPost_Embed{
				EmbedImages: &bsky.EmbedImages{Images: images},
			}
		}
	}

	out, err := atproto.RepoCreateRecord(ctx, p.client, &atproto.RepoCreateRecord_Input{
		Collection: "app.bsky.feed.post",
		Repo:       p.client.Auth.Did,
		Record: &util.LexiconTypeDecoder{
			Val: post,
		},
	})
	if err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	logutil.Debugf("bluesky post created: uri=%s", out.Uri)
	status.Successf("Posted to Bluesky")
	return nil
}

func (p *Publisher) uploadImage(ctx context.Context, path string) (*util.LexBlob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, poster.ValidationError{Provider: providerName, Reason: fmt.Sprintf("image %q not found", path), Err: err}
		}
		return nil, fmt.Errorf("read image: %w", err)
	}

	resp, err := atproto.RepoUploadBlob(ctx, p.client, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("upload blob: %w", err)
	}
	if resp.Blob == nil {
		return nil, errors.New("upload blob: empty response")
	}
	return resp.Blob, nil
}
