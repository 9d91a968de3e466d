// Package reddit submits posts to one or more subreddits.
package reddit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/HC91Dev/MultiPlatformPoster/internal/logutil"
	"github.com/HC91Dev/MultiPlatformPoster/internal/poster"
)

const (
	providerName = "Reddit"

	DefaultTokenURL  = "https://www.reddit.com/api/v1/access_token"
	DefaultAPIURL    = "https://oauth.reddit.com"
	DefaultUserAgent = "multipost/1.0"

	// DefaultPause spaces out submissions across subreddits.
	DefaultPause = 2 * time.Second

	maxTitleRunes     = 300
	shortTitleRunes   = 100
	requestTimeout    = 120 * time.Second
	submissionTimeout = 60 * time.Second
)

// PosterFramer extracts a still frame used as a video thumbnail.
type PosterFramer interface {
	PosterFrame(ctx context.Context, src string) (string, error)
}

// Config carries the script-app credentials and target subreddits.
type Config struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
	Subreddits   []string
}

// SplitSubreddits parses a comma separated subreddit list, dropping blanks
// and any r/ prefix.
func SplitSubreddits(s string) []string {
	var out []string
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		name = strings.TrimPrefix(strings.TrimPrefix(name, "/"), "r/")
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// Publisher implements poster.Publisher for Reddit.
type Publisher struct {
	api        *client
	subreddits []string
	pause      time.Duration
	framer     PosterFramer
}

// Option customizes a Publisher.
type Option func(*Publisher)

// WithHTTPClient sets the base client used for the token exchange, API
// calls and media uploads.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Publisher) {
		if c != nil {
			p.api.base = c
		}
	}
}

// WithEndpoints overrides the token and API roots.
func WithEndpoints(tokenURL, apiURL string) Option {
	return func(p *Publisher) {
		if tokenURL != "" {
			p.api.oauth.Endpoint.TokenURL = tokenURL
		}
		if apiURL != "" {
			p.api.apiURL = strings.TrimRight(apiURL, "/")
		}
	}
}

// WithPause sets the delay between subreddits.
func WithPause(d time.Duration) Option {
	return func(p *Publisher) { p.pause = d }
}

// WithPosterFramer enables video submissions.
func WithPosterFramer(f PosterFramer) Option {
	return func(p *Publisher) { p.framer = f }
}

// New validates cfg. No request is made.
func New(cfg Config, opts ...Option) (*Publisher, error) {
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if err := poster.RequireFields(providerName,
		"client_id", cfg.ClientID,
		"client_secret", cfg.ClientSecret,
		"username", cfg.Username,
		"password", cfg.Password,
		"user_agent", cfg.UserAgent,
	); err != nil {
		return nil, err
	}
	var subs []string
	for _, s := range cfg.Subreddits {
		subs = append(subs, SplitSubreddits(s)...)
	}
	if len(subs) == 0 {
		return nil, poster.MissingCredentialsError{Provider: providerName, Fields: []string{"subreddits"}}
	}

	p := &Publisher{
		api:        newClient(cfg),
		subreddits: subs,
		pause:      DefaultPause,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns the platform identifier.
func (p *Publisher) Name() poster.Platform { return poster.Reddit }

// Publish submits the post to every configured subreddit in order.
func (p *Publisher) Publish(ctx context.Context, req poster.Request, status *poster.Reporter) error {
	title, body := splitTitle(req.Text)
	if strings.TrimSpace(title) == "" {
		return poster.ValidationError{Provider: providerName, Reason: "Reddit posts need a title"}
	}

	var file string
	if files := poster.Truncate(req.Media, poster.MaxMedia(poster.Reddit)); len(files) > 0 {
		file = files[0]
	}

	uploads := &assets{}
	sent := 0
	for i, sub := range p.subreddits {
		if i > 0 {
			if err := poster.Pause(ctx, p.pause); err != nil {
				return err
			}
		}
		if err := p.submit(ctx, sub, title, body, file, uploads, status); err != nil {
			status.Failf("Failed to post to r/%s: %v", sub, err)
			continue
		}
		sent++
		status.Successf("Posted to r/%s", sub)
	}

	if sent == 0 {
		return fmt.Errorf("failed to post to any of %d subreddits", len(p.subreddits))
	}
	status.Successf("Reddit: Posted to %d/%d subreddits", sent, len(p.subreddits))
	return nil
}

// assets caches uploaded media so each file is leased once per run.
type assets struct {
	mediaURL  string
	posterURL string
}

func (p *Publisher) submit(ctx context.Context, sub, title, body, file string, uploads *assets, status *poster.Reporter) error {
	kind := submissionKind(file)
	if file != "" && kind == kindSelf {
		status.Warnf("%s cannot be attached on Reddit - submitting a text post to r/%s", filepath.Base(file), sub)
	}

	form := url.Values{
		"sr":    {sub},
		"title": {title},
		"kind":  {kind},
	}
	if kind == kindSelf {
		form.Set("text", body)
		_, err := p.api.submit(ctx, form)
		return err
	}

	if err := p.upload(ctx, file, kind, uploads); err != nil {
		return err
	}
	form.Set("url", uploads.mediaURL)
	if kind == kindVideo {
		form.Set("video_poster_url", uploads.posterURL)
	}
	data, err := p.api.submit(ctx, form)
	if err != nil {
		return err
	}

	if body == "" || body == title {
		return nil
	}
	// The submission id is only known once media processing finishes.
	id, err := p.api.waitSubmission(ctx, data.WebsocketURL)
	if err != nil {
		status.Warnf("Posted to r/%s but could not add the text as a comment: %v", sub, err)
		return nil
	}
	if err := p.api.comment(ctx, "t3_"+id, body); err != nil {
		status.Warnf("Posted to r/%s but could not add the text as a comment: %v", sub, err)
	}
	return nil
}

func (p *Publisher) upload(ctx context.Context, file, kind string, uploads *assets) error {
	if kind == kindVideo && p.framer == nil {
		return poster.ValidationError{Provider: providerName, Reason: "video submissions need a poster frame", Err: poster.ErrUnsupported}
	}
	if uploads.mediaURL == "" {
		u, err := p.api.uploadAsset(ctx, file)
		if err != nil {
			return fmt.Errorf("upload %s: %w", filepath.Base(file), err)
		}
		uploads.mediaURL = u
		logutil.Debugf("reddit media uploaded: %s", u)
	}
	if kind != kindVideo || uploads.posterURL != "" {
		return nil
	}
	frame, err := p.framer.PosterFrame(ctx, file)
	if err != nil {
		return fmt.Errorf("poster frame: %w", err)
	}
	u, err := p.api.uploadAsset(ctx, frame)
	if err != nil {
		return fmt.Errorf("upload poster frame: %w", err)
	}
	uploads.posterURL = u
	return nil
}

const (
	kindSelf  = "self"
	kindImage = "image"
	kindVideo = "video"
)

func submissionKind(file string) string {
	switch {
	case poster.IsImage(file):
		return kindImage
	case poster.Ext(file) == ".mp4":
		return kindVideo
	default:
		return kindSelf
	}
}

// splitTitle derives the title and body. Lines are counted on the trimmed
// content: a multi-line post uses its first line as the title and the rest as
// body. A single line is used as-is for both, with the title shortened to 100
// characters.
func splitTitle(content string) (title, body string) {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) > 1 {
		return truncateRunes(lines[0], maxTitleRunes), strings.Join(lines[1:], "\n")
	}
	if r := []rune(content); len(r) > shortTitleRunes {
		return string(r[:shortTitleRunes]) + "...", content
	}
	return content, content
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
