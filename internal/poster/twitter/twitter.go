// Package twitter publishes posts to X (Twitter) through gotwi.
package twitter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/michimani/gotwi"

	"github.com/HC91Dev/MultiPlatformPoster/internal/logutil"
	"github.com/HC91Dev/MultiPlatformPoster/internal/poster"
)

const providerName = "Twitter"

var httpTimeout = 30 * time.Second

// Config captures the credentials required for OAuth 1.0a user-context requests.
type Config struct {
	APIKey       string
	APISecret    string
	BearerToken  string
	AccessToken  string
	AccessSecret string
	Debug        bool
}

// Validate reports every missing credential field.
func (c Config) Validate() error {
	return poster.RequireFields(providerName,
		"bearer_token", c.BearerToken,
		"api_key", c.APIKey,
		"api_secret", c.APISecret,
		"access_token", c.AccessToken,
		"access_secret", c.AccessSecret,
	)
}

// api is the subset of the X API the publisher drives.
type api interface {
	VerifyCredentials(ctx context.Context) error
	UploadMedia(ctx context.Context, path, altText string) (string, error)
	CreateTweet(ctx context.Context, text string, mediaIDs []string) (string, error)
}

// Publisher implements poster.Publisher for X.
type Publisher struct {
	api api
}

// Option customizes a Publisher.
type Option func(*options)

type options struct {
	httpClient *http.Client
	api        api
}

// WithHTTPClient overrides the HTTP client handed to gotwi.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// New validates cfg and builds a gotwi-backed publisher. No request is made.
func New(cfg Config, opts ...Option) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{httpClient: &http.Client{Timeout: httpTimeout}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.api != nil {
		return &Publisher{api: o.api}, nil
	}

	client, err := gotwi.NewClient(&gotwi.NewClientInput{
		HTTPClient:           o.httpClient,
		AuthenticationMethod: gotwi.AuthenMethodOAuth1UserContext,
		OAuthToken:           cfg.AccessToken,
		OAuthTokenSecret:     cfg.AccessSecret,
		APIKey:               cfg.APIKey,
		APIKeySecret:         cfg.APISecret,
		Debug:                cfg.Debug || logutil.Verbose(),
	})
	if err != nil {
		return nil, fmt.Errorf("create X client: %w", err)
	}
	if !client.IsReady() {
		return nil, errors.New("twitter client not ready")
	}
	return &Publisher{api: &gotwiAPI{client: client}}, nil
}

// Name returns the platform identifier.
func (p *Publisher) Name() poster.Platform { return poster.Twitter }

// Publish creates one tweet carrying up to four uploaded media items.
func (p *Publisher) Publish(ctx context.Context, req poster.Request, status *poster.Reporter) error {
	media := poster.Truncate(req.Media, poster.MaxMedia(poster.Twitter))
	if len(media) == 0 {
		if _, err := p.api.CreateTweet(ctx, req.Text, nil); err != nil {
			return fmt.Errorf("post tweet: %w", err)
		}
		status.Successf("Posted to Twitter")
		return nil
	}

	if err := p.api.VerifyCredentials(ctx); err != nil {
		if !hasStatus(err, http.StatusUnauthorized) {
			return fmt.Errorf("verify credentials: %w", err)
		}
		status.Failf("Twitter: Invalid credentials or insufficient permissions")
		status.Infof("Ensure your app has read AND write permissions")
		if _, err := p.api.CreateTweet(ctx, req.Text, nil); err != nil {
			return fmt.Errorf("post tweet: %w", err)
		}
		status.Successf("Posted to Twitter (text only)")
		return nil
	}

	status.Infof("Uploading %d media files to Twitter...", len(media))
	var mediaIDs []string
	for i, path := range media {
		name := filepath.Base(path)
		status.Infof("Uploading file %d/%d: %s", i+1, len(media), name)
		id, err := p.api.UploadMedia(ctx, path, fmt.Sprintf("Image %d", i+1))
		if err != nil {
			if hasStatus(err, http.StatusForbidden) {
				status.Warnf("Upload forbidden for %s", name)
				status.Infof("Check Twitter app permissions: needs read AND write access")
			} else {
				status.Warnf("Failed to upload %s: %v", name, err)
			}
			continue
		}
		logutil.Debugf("media uploaded: media_id=%s", id)
		mediaIDs = append(mediaIDs, id)
	}

	if len(mediaIDs) == 0 {
		if _, err := p.api.CreateTweet(ctx, req.Text, nil); err != nil {
			return fmt.Errorf("post tweet: %w", err)
		}
		status.Successf("Posted to Twitter (text only, media upload failed)")
		return nil
	}

	status.Infof("Posting tweet with %d media files...", len(mediaIDs))
	if _, err := p.api.CreateTweet(ctx, req.Text, mediaIDs); err != nil {
		return fmt.Errorf("post tweet: %w", err)
	}
	status.Successf("Posted to Twitter")
	return nil
}

// statusError carries the HTTP status of a failed X API call.
type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string {
	if e.code == 0 {
		return e.msg
	}
	return fmt.Sprintf("%s (HTTP %d)", e.msg, e.code)
}

func hasStatus(err error, code int) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == code
}

func joinMessages(messages []string) string {
	return strings.Join(messages, "; ")
}
