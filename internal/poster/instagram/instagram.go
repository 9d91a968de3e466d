// Package instagram publishes single-image posts through the Graph API.
package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/HC91Dev/MultiPlatformPoster/internal/logutil"
	"github.com/HC91Dev/MultiPlatformPoster/internal/poster"
)

const (
	// DefaultGraphURL is the versioned Graph API root.
	DefaultGraphURL = "https://graph.facebook.com/v18.0"

	providerName   = "Instagram"
	requestTimeout = 60 * time.Second
)

// ImageHost turns a local image into a public URL the Graph API can fetch.
type ImageHost interface {
	Upload(ctx context.Context, path string) (string, error)
}

// Config carries the business account credentials.
type Config struct {
	AccessToken string
	AccountID   string
	GraphURL    string
}

// Publisher implements poster.Publisher for Instagram.
type Publisher struct {
	cfg    Config
	host   ImageHost
	client *http.Client
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

// New validates cfg. host may be nil; publishing then fails with a
// configuration error before any request.
func New(cfg Config, host ImageHost, opts ...Option) (*Publisher, error) {
	cfg.AccessToken = strings.TrimSpace(cfg.AccessToken)
	cfg.AccountID = strings.TrimSpace(cfg.AccountID)
	cfg.GraphURL = strings.TrimRight(strings.TrimSpace(cfg.GraphURL), "/")
	if cfg.GraphURL == "" {
		cfg.GraphURL = DefaultGraphURL
	}
	if err := poster.RequireFields(providerName, "access_token", cfg.AccessToken, "account_id", cfg.AccountID); err != nil {
		return nil, err
	}
	p := &Publisher{
		cfg:    cfg,
		host:   host,
		client: &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns the platform identifier.
func (p *Publisher) Name() poster.Platform { return poster.Instagram }

// Publish hosts the first image and drives the container create/publish pair.
func (p *Publisher) Publish(ctx context.Context, req poster.Request, status *poster.Reporter) error {
	path, err := p.validate(req.Media, status)
	if err != nil {
		return err
	}

	status.Infof("Uploading image to imgBB...")
	imageURL, err := p.host.Upload(ctx, path)
	if err != nil {
		return fmt.Errorf("upload image to imgBB: %w", err)
	}
	status.Successf("Image uploaded to imgBB: %s", imageURL)

	status.Infof("Creating Instagram media container...")
	containerID, err := p.call(ctx, "media", url.Values{
		"image_url":    {imageURL},
		"caption":      {req.Text},
		"access_token": {p.cfg.AccessToken},
	})
	if err != nil {
		return fmt.Errorf("container creation failed: %w", err)
	}
	logutil.Debugf("instagram container created: id=%s", containerID)

	status.Infof("Publishing to Instagram...")
	if _, err := p.call(ctx, "media_publish", url.Values{
		"creation_id":  {containerID},
		"access_token": {p.cfg.AccessToken},
	}); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	status.Successf("Posted to Instagram")
	return nil
}

// validate rejects everything the Graph flow cannot publish, before any request.
func (p *Publisher) validate(media []string, status *poster.Reporter) (string, error) {
	if len(media) == 0 {
		return "", poster.ValidationError{Provider: providerName, Reason: "Instagram requires at least one image or video"}
	}
	if len(media) > 1 {
		status.Warnf("Instagram supports one media file per post - using %s", filepath.Base(media[0]))
	}
	path := media[0]
	switch ext := poster.Ext(path); ext {
	case ".jpg", ".jpeg", ".png":
	case ".mp4":
		return "", poster.ValidationError{
			Provider: providerName,
			Reason:   "Video posting requires a video hosting solution (imgBB doesn't support videos)",
			Err:      poster.ErrUnsupported,
		}
	default:
		return "", poster.ValidationError{Provider: providerName, Reason: fmt.Sprintf("Instagram doesn't support %s files", ext)}
	}
	if p.host == nil {
		return "", poster.MissingCredentialsError{Provider: "imgBB", Fields: []string{"api_key"}}
	}
	return path, nil
}

type graphResponse struct {
	ID    string `json:"id"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (p *Publisher) call(ctx context.Context, edge string, form url.Values) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/%s", p.cfg.GraphURL, url.PathEscape(p.cfg.AccountID), edge)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", poster.TransportError{Provider: providerName, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", poster.TransportError{Provider: providerName, Err: err}
	}

	var parsed graphResponse
	decodeErr := json.Unmarshal(body, &parsed)
	if resp.StatusCode != http.StatusOK {
		msg := "Unknown error"
		if decodeErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return "", poster.APIError{Provider: providerName, StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode %s response: %w", edge, decodeErr)
	}
	if parsed.ID == "" {
		return "", poster.APIError{Provider: providerName, StatusCode: resp.StatusCode, Message: "no id returned"}
	}
	return parsed.ID, nil
}
