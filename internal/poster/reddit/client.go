package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/oauth2"

	"github.com/HC91Dev/MultiPlatformPoster/internal/logutil"
	"github.com/HC91Dev/MultiPlatformPoster/internal/media"
	"github.com/HC91Dev/MultiPlatformPoster/internal/poster"
)

const maxErrorBody = 4 << 10

// client talks to the OAuth API. Authorization is lazy and reused.
type client struct {
	oauth     oauth2.Config
	username  string
	password  string
	userAgent string
	apiURL    string
	base      *http.Client
	authed    *http.Client
}

func newClient(cfg Config) *client {
	return &client{
		oauth: oauth2.Config{
			ClientID:     strings.TrimSpace(cfg.ClientID),
			ClientSecret: strings.TrimSpace(cfg.ClientSecret),
			Endpoint: oauth2.Endpoint{
				TokenURL:  DefaultTokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		username:  strings.TrimSpace(cfg.Username),
		password:  cfg.Password,
		userAgent: strings.TrimSpace(cfg.UserAgent),
		apiURL:    DefaultAPIURL,
		base:      &http.Client{Timeout: requestTimeout},
	}
}

// userAgentTransport stamps every request; Reddit throttles generic agents.
type userAgentTransport struct {
	agent string
	next  http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.agent)
	return t.next.RoundTrip(req)
}

func (c *client) plain() *http.Client {
	next := c.base.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	return &http.Client{
		Transport: userAgentTransport{agent: c.userAgent, next: next},
		Timeout:   c.base.Timeout,
	}
}

func (c *client) authorize(ctx context.Context) (*http.Client, error) {
	if c.authed != nil {
		return c.authed, nil
	}
	plain := c.plain()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, plain)
	tok, err := c.oauth.PasswordCredentialsToken(ctx, c.username, c.password)
	if err != nil {
		return nil, fmt.Errorf("reddit login: %w", err)
	}
	authed := oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))
	authed.Timeout = plain.Timeout
	c.authed = authed
	logutil.Debugf("reddit authorized: user=%s", c.username)
	return authed, nil
}

func (c *client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	api, err := c.authorize(ctx)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return do(api, req, out)
}

func do(hc *http.Client, req *http.Request, out any) error {
	resp, err := hc.Do(req)
	if err != nil {
		return poster.TransportError{Provider: providerName, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return poster.APIError{Provider: providerName, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// apiErrors is Reddit's api_type=json error list: [["CODE", "message", "field"], ...].
type apiErrors [][]any

func (e apiErrors) err() error {
	if len(e) == 0 {
		return nil
	}
	var parts []string
	for _, entry := range e {
		var fields []string
		for _, v := range entry[:min(len(entry), 2)] {
			fields = append(fields, fmt.Sprint(v))
		}
		parts = append(parts, strings.Join(fields, ": "))
	}
	return poster.APIError{Provider: providerName, Message: strings.Join(parts, "; ")}
}

type submitData struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	WebsocketURL string `json:"websocket_url"`
}

type submitResponse struct {
	JSON struct {
		Errors apiErrors  `json:"errors"`
		Data   submitData `json:"data"`
	} `json:"json"`
}

func (c *client) submit(ctx context.Context, form url.Values) (submitData, error) {
	form.Set("api_type", "json")
	form.Set("resubmit", "true")
	form.Set("sendreplies", "true")
	var resp submitResponse
	if err := c.postForm(ctx, "/api/submit", form, &resp); err != nil {
		return submitData{}, err
	}
	if err := resp.JSON.Errors.err(); err != nil {
		return submitData{}, err
	}
	logutil.Debugf("reddit submitted: sr=%s kind=%s id=%s", form.Get("sr"), form.Get("kind"), resp.JSON.Data.ID)
	return resp.JSON.Data, nil
}

func (c *client) comment(ctx context.Context, thing, text string) error {
	var resp struct {
		JSON struct {
			Errors apiErrors `json:"errors"`
		} `json:"json"`
	}
	form := url.Values{
		"thing_id": {thing},
		"text":     {text},
		"api_type": {"json"},
	}
	if err := c.postForm(ctx, "/api/comment", form, &resp); err != nil {
		return err
	}
	return resp.JSON.Errors.err()
}

type leaseResponse struct {
	Args struct {
		Action string `json:"action"`
		Fields []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"fields"`
	} `json:"args"`
	Asset struct {
		AssetID      string `json:"asset_id"`
		WebsocketURL string `json:"websocket_url"`
	} `json:"asset"`
}

// uploadAsset leases an upload slot and posts the file to it, returning the
// public media URL.
func (c *client) uploadAsset(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	var lease leaseResponse
	form := url.Values{
		"filepath": {filepath.Base(path)},
		"mimetype": {media.ContentType(path)},
	}
	if err := c.postForm(ctx, "/api/media/asset.json", form, &lease); err != nil {
		return "", fmt.Errorf("media lease: %w", err)
	}

	action := lease.Args.Action
	if strings.HasPrefix(action, "//") {
		scheme := "https"
		if u, err := url.Parse(c.apiURL); err == nil && u.Scheme != "" {
			scheme = u.Scheme
		}
		action = scheme + ":" + action
	}
	var key string
	fields := make([][2]string, 0, len(lease.Args.Fields))
	for _, f := range lease.Args.Fields {
		fields = append(fields, [2]string{f.Name, f.Value})
		if f.Name == "key" {
			key = f.Value
		}
	}
	if action == "" || key == "" {
		return "", poster.APIError{Provider: providerName, Message: "media lease missing upload target"}
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeUpload(mw, fields, path)
		if err == nil {
			err = mw.Close()
		}
		_ = pw.CloseWithError(err)
	}()
	defer func() { _ = pr.Close() }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action, pr)
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if err := do(c.plain(), req, nil); err != nil {
		return "", err
	}
	return action + "/" + key, nil
}

func writeUpload(mw *multipart.Writer, fields [][2]string, path string) error {
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(path)))
	h.Set("Content-Type", media.ContentType(path))
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

var commentsPath = regexp.MustCompile(`/comments/([A-Za-z0-9]+)`)

type wsUpdate struct {
	Type    string `json:"type"`
	Payload struct {
		Redirect string `json:"redirect"`
	} `json:"payload"`
}

// waitSubmission reads the media-processing socket until Reddit reports the
// submission and returns its id.
func (c *client) waitSubmission(ctx context.Context, wsURL string) (string, error) {
	if wsURL == "" {
		return "", poster.APIError{Provider: providerName, Message: "submission returned no websocket"}
	}
	ctx, cancel := context.WithTimeout(ctx, submissionTimeout)
	defer cancel()

	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, wsURL, http.Header{"User-Agent": {c.userAgent}})
	if err != nil {
		return "", poster.TransportError{Provider: providerName, Err: err}
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	_ = conn.SetReadDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	var update wsUpdate
	if err := conn.ReadJSON(&update); err != nil {
		return "", poster.TransportError{Provider: providerName, Err: err}
	}
	if update.Type != "success" {
		return "", poster.APIError{Provider: providerName, Message: "media processing " + update.Type}
	}
	m := commentsPath.FindStringSubmatch(update.Payload.Redirect)
	if m == nil {
		return "", poster.APIError{Provider: providerName, Message: "unexpected submission url " + update.Payload.Redirect}
	}
	return m[1], nil
}
