// Package imghost uploads images to imgBB to obtain public URLs.
package imghost

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/HC91Dev/MultiPlatformPoster/internal/logutil"
	"github.com/HC91Dev/MultiPlatformPoster/internal/poster"
)

const (
	// DefaultEndpoint is the imgBB upload API.
	DefaultEndpoint = "https://api.imgbb.com/1/upload"
	// MaxUploadBytes is the host's own size ceiling.
	MaxUploadBytes int64 = 32 << 20

	providerName = "imgBB"
)

// ErrTooLarge is returned for files over MaxUploadBytes; no request is made.
var ErrTooLarge = errors.New("image exceeds imgBB 32MB limit")

// Uploader publishes local images to imgBB.
type Uploader struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// Option customizes an Uploader.
type Option func(*Uploader)

// WithEndpoint overrides the upload URL.
func WithEndpoint(endpoint string) Option {
	return func(u *Uploader) {
		if endpoint != "" {
			u.endpoint = endpoint
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(u *Uploader) {
		if c != nil {
			u.client = c
		}
	}
}

// New returns an uploader for apiKey. An empty key is a configuration error.
func New(apiKey string, opts ...Option) (*Uploader, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, poster.MissingCredentialsError{Provider: providerName, Fields: []string{"api_key"}}
	}
	u := &Uploader{
		apiKey:   apiKey,
		endpoint: DefaultEndpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

type uploadResponse struct {
	Success bool `json:"success"`
	Status  int  `json:"status"`
	Data    struct {
		URL        string `json:"url"`
		DisplayURL string `json:"display_url"`
	} `json:"data"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload sends the file at path and returns its public URL.
func (u *Uploader) Upload(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat image: %w", err)
	}
	if info.Size() > MaxUploadBytes {
		return "", ErrTooLarge
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	form := url.Values{}
	form.Set("key", u.apiKey)
	form.Set("image", base64.StdEncoding.EncodeToString(raw))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	logutil.Debugf("uploading image to imgBB: path=%s bytes=%d", path, info.Size())
	resp, err := u.client.Do(req)
	if err != nil {
		return "", poster.TransportError{Provider: providerName, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", poster.TransportError{Provider: providerName, Err: err}
	}

	var parsed uploadResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", poster.APIError{Provider: providerName, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	if !parsed.Success || parsed.Data.URL == "" {
		msg := parsed.Error.Message
		if msg == "" {
			msg = "unknown error"
		}
		return "", poster.APIError{Provider: providerName, StatusCode: resp.StatusCode, Message: msg}
	}
	return parsed.Data.URL, nil
}
