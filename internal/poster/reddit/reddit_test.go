package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HC91Dev/MultiPlatformPoster/internal/poster"
)

type fakeReddit struct {
	t      *testing.T
	srv    *httptest.Server
	mu     sync.Mutex
	tokens int
	// submits records every /api/submit form.
	submits  []map[string]string
	comments []map[string]string
	uploads  []string
	// submitErrors maps subreddit to a Reddit error code.
	submitErrors map[string]string
	wsType       string
	denyLogin    bool
}

func newFakeReddit(t *testing.T) *fakeReddit {
	f := &fakeReddit{t: t, submitErrors: map[string]string{}, wsType: "success"}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", f.token)
	mux.HandleFunc("/api/submit", f.authed(f.submit))
	mux.HandleFunc("/api/comment", f.authed(f.comment))
	mux.HandleFunc("/api/media/asset.json", f.authed(f.lease))
	mux.HandleFunc("/s3", f.s3)
	mux.HandleFunc("/ws", f.socket)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeReddit) token(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	assert.True(f.t, ok)
	assert.Equal(f.t, "cid", user)
	assert.Equal(f.t, "secret", pass)
	assert.Equal(f.t, "multipost-test/1.0", r.UserAgent())
	assert.NoError(f.t, r.ParseForm())
	assert.Equal(f.t, "password", r.PostForm.Get("grant_type"))
	assert.Equal(f.t, "alice", r.PostForm.Get("username"))

	f.mu.Lock()
	f.tokens++
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if f.denyLogin {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
		return
	}
	_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600,"scope":"*"}`))
}

func (f *fakeReddit) authed(next func(http.ResponseWriter, *http.Request, map[string]string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(f.t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(f.t, "multipost-test/1.0", r.UserAgent())
		assert.NoError(f.t, r.ParseForm())
		form := map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		next(w, r, form)
	}
}

func (f *fakeReddit) submit(w http.ResponseWriter, _ *http.Request, form map[string]string) {
	f.mu.Lock()
	f.submits = append(f.submits, form)
	f.mu.Unlock()
	if code, ok := f.submitErrors[form["sr"]]; ok {
		_ = json.NewEncoder(w).Encode(map[string]any{"json": map[string]any{
			"errors": [][]string{{code, "that subreddit doesn't exist", "sr"}},
		}})
		return
	}
	data := map[string]any{"id": "abc123", "name": "t3_abc123"}
	if form["kind"] != kindSelf {
		data = map[string]any{"websocket_url": "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"json": map[string]any{"errors": []any{}, "data": data}})
}

func (f *fakeReddit) comment(w http.ResponseWriter, _ *http.Request, form map[string]string) {
	f.mu.Lock()
	f.comments = append(f.comments, form)
	f.mu.Unlock()
	_, _ = w.Write([]byte(`{"json":{"errors":[]}}`))
}

func (f *fakeReddit) lease(w http.ResponseWriter, _ *http.Request, form map[string]string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"args": map[string]any{
			"action": "//" + strings.TrimPrefix(f.srv.URL, "http://") + "/s3",
			"fields": []map[string]string{
				{"name": "acl", "value": "private"},
				{"name": "key", "value": "rte_images/" + form["filepath"]},
			},
		},
		"asset": map[string]any{"asset_id": "a1"},
	})
}

func (f *fakeReddit) s3(w http.ResponseWriter, r *http.Request) {
	assert.Empty(f.t, r.Header.Get("Authorization"))
	mr, err := r.MultipartReader()
	if !assert.NoError(f.t, err) {
		return
	}
	var key, file string
	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}
		data, _ := io.ReadAll(part)
		switch part.FormName() {
		case "key":
			key = string(data)
		case "file":
			file = part.FileName()
		}
	}
	assert.Equal(f.t, "rte_images/"+file, key)
	f.mu.Lock()
	f.uploads = append(f.uploads, file)
	f.mu.Unlock()
	w.WriteHeader(http.StatusCreated)
}

func (f *fakeReddit) socket(w http.ResponseWriter, r *http.Request) {
	conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
	if !assert.NoError(f.t, err) {
		return
	}
	defer conn.Close()
	_ = conn.WriteJSON(map[string]any{
		"type":    f.wsType,
		"payload": map[string]string{"redirect": "https://www.reddit.com/r/golang/comments/xyz789/hello/"},
	})
}

type fakeFramer struct{ dir string }

func (f fakeFramer) PosterFrame(_ context.Context, src string) (string, error) {
	out := filepath.Join(f.dir, strings.TrimSuffix(filepath.Base(src), ".mp4")+"_poster.jpg")
	return out, os.WriteFile(out, []byte("jpeg"), 0o600)
}

func newPublisher(t *testing.T, f *fakeReddit, subs string, opts ...Option) *Publisher {
	t.Helper()
	p, err := New(Config{
		ClientID:     "cid",
		ClientSecret: "secret",
		Username:     "alice",
		Password:     "hunter2",
		UserAgent:    "multipost-test/1.0",
		Subreddits:   []string{subs},
	}, append([]Option{WithEndpoints(f.srv.URL+"/api/v1/access_token", f.srv.URL), WithPause(0)}, opts...)...)
	require.NoError(t, err)
	return p
}

func publish(p *Publisher, req poster.Request) ([]string, error) {
	var lines []string
	r := poster.NewReporter(func(e poster.Event) { lines = append(lines, e.String()) })
	return lines, p.Publish(context.Background(), req, r)
}

func writeFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o600))
	return path
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{ClientID: "cid", Subreddits: []string{"golang"}})
	var missing poster.MissingCredentialsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"client_secret", "username", "password"}, missing.Fields)

	_, err = New(Config{ClientID: "a", ClientSecret: "b", Username: "c", Password: "d", Subreddits: []string{" , "}})
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"subreddits"}, missing.Fields)
}

func TestSplitSubreddits(t *testing.T) {
	assert.Equal(t, []string{"python", "programming", "webdev"}, SplitSubreddits(" python, r/programming,,/r/webdev "))
	assert.Nil(t, SplitSubreddits(""))
}

func TestSplitTitle(t *testing.T) {
	tests := []struct {
		name, content, title, body string
	}{
		{name: "single short", content: "hello world", title: "hello world", body: "hello world"},
		{name: "multi line", content: "Title line\nbody one\nbody two", title: "Title line", body: "body one\nbody two"},
		{name: "single long", content: strings.Repeat("a", 150), title: strings.Repeat("a", 100) + "...", body: strings.Repeat("a", 150)},
		{name: "long first line", content: strings.Repeat("é", 350) + "\nrest", title: strings.Repeat("é", 300), body: "rest"},
		{name: "single line kept untrimmed", content: "  padded ", title: "  padded ", body: "  padded "},
		{name: "surrounding blank lines", content: "\n\nTitle\nbody\n", title: "Title", body: "body"},
		{name: "exactly 100", content: strings.Repeat("b", 100), title: strings.Repeat("b", 100), body: strings.Repeat("b", 100)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, body := splitTitle(tt.content)
			assert.Equal(t, tt.title, title)
			assert.Equal(t, tt.body, body)
		})
	}
}

func TestSelfPostToEverySubreddit(t *testing.T) {
	f := newFakeReddit(t)
	lines, err := publish(newPublisher(t, f, "golang, nosuch, rust"), poster.Request{Text: "Weekly update\nAll good."})
	require.NoError(t, err)

	require.Len(t, f.submits, 3)
	assert.Equal(t, 1, f.tokens, "token reused across subreddits")
	first := f.submits[0]
	assert.Equal(t, "golang", first["sr"])
	assert.Equal(t, "self", first["kind"])
	assert.Equal(t, "Weekly update", first["title"])
	assert.Equal(t, "All good.", first["text"])
	assert.Equal(t, "json", first["api_type"])
	assert.Equal(t, "true", first["resubmit"])
	assert.Equal(t, "✓ Reddit: Posted to 3/3 subreddits", lines[len(lines)-1])
}

func TestSubredditFailureContinues(t *testing.T) {
	f := newFakeReddit(t)
	f.submitErrors["nosuch"] = "SUBREDDIT_NOEXIST"
	lines, err := publish(newPublisher(t, f, "golang, nosuch"), poster.Request{Text: "hi"})
	require.NoError(t, err)

	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "✓ Posted to r/golang")
	assert.Contains(t, joined, "✗ Failed to post to r/nosuch: Reddit API error: SUBREDDIT_NOEXIST: that subreddit doesn't exist")
	assert.Equal(t, "✓ Reddit: Posted to 1/2 subreddits", lines[len(lines)-1])
}

func TestAllSubredditsFail(t *testing.T) {
	f := newFakeReddit(t)
	f.submitErrors["a"] = "SUBREDDIT_NOEXIST"
	_, err := publish(newPublisher(t, f, "a"), poster.Request{Text: "hi"})
	require.Error(t, err)
}

func TestImagePostWithBodyComment(t *testing.T) {
	f := newFakeReddit(t)
	img := writeFile(t, "cat.jpg")
	_, err := publish(newPublisher(t, f, "golang, pics"), poster.Request{Text: "Cat\nlook at this cat", Media: []string{img, writeFile(t, "dog.jpg")}})
	require.NoError(t, err)

	assert.Equal(t, []string{"cat.jpg"}, f.uploads, "media leased once per run")
	require.Len(t, f.submits, 2)
	sub := f.submits[0]
	assert.Equal(t, "image", sub["kind"])
	assert.Equal(t, "Cat", sub["title"])
	assert.Equal(t, f.srv.URL+"/s3/rte_images/cat.jpg", sub["url"])
	assert.Empty(t, sub["text"])

	require.Len(t, f.comments, 2)
	assert.Equal(t, "t3_xyz789", f.comments[0]["thing_id"])
	assert.Equal(t, "look at this cat", f.comments[0]["text"])
}

func TestImagePostSingleLineSkipsComment(t *testing.T) {
	f := newFakeReddit(t)
	_, err := publish(newPublisher(t, f, "pics"), poster.Request{Text: "short caption", Media: []string{writeFile(t, "a.png")}})
	require.NoError(t, err)
	assert.Empty(t, f.comments)
}

func TestFailedProcessingStillCountsSubmission(t *testing.T) {
	f := newFakeReddit(t)
	f.wsType = "failed"
	lines, err := publish(newPublisher(t, f, "pics"), poster.Request{Text: "T\nbody", Media: []string{writeFile(t, "a.png")}})
	require.NoError(t, err)
	assert.Empty(t, f.comments)
	assert.Contains(t, strings.Join(lines, "\n"), "⚠ Posted to r/pics but could not add the text as a comment")
}

func TestVideoPostUploadsPosterFrame(t *testing.T) {
	f := newFakeReddit(t)
	clip := writeFile(t, "clip.mp4")
	_, err := publish(newPublisher(t, f, "videos", WithPosterFramer(fakeFramer{dir: t.TempDir()})), poster.Request{Text: "Clip", Media: []string{clip}})
	require.NoError(t, err)

	assert.Equal(t, []string{"clip.mp4", "clip_poster.jpg"}, f.uploads)
	require.Len(t, f.submits, 1)
	assert.Equal(t, "video", f.submits[0]["kind"])
	assert.Equal(t, f.srv.URL+"/s3/rte_images/clip_poster.jpg", f.submits[0]["video_poster_url"])
}

func TestVideoWithoutFramerFails(t *testing.T) {
	f := newFakeReddit(t)
	_, err := publish(newPublisher(t, f, "videos"), poster.Request{Text: "Clip", Media: []string{writeFile(t, "clip.mp4")}})
	require.Error(t, err)
	assert.Empty(t, f.submits)
}

func TestOtherExtensionFallsBackToSelfPost(t *testing.T) {
	f := newFakeReddit(t)
	lines, err := publish(newPublisher(t, f, "golang"), poster.Request{Text: "notes", Media: []string{writeFile(t, "notes.webm")}})
	require.NoError(t, err)
	require.Len(t, f.submits, 1)
	assert.Equal(t, "self", f.submits[0]["kind"])
	assert.Empty(t, f.uploads)
	assert.Contains(t, strings.Join(lines, "\n"), "⚠ notes.webm cannot be attached on Reddit")
}

func TestLoginFailure(t *testing.T) {
	f := newFakeReddit(t)
	f.denyLogin = true
	lines, err := publish(newPublisher(t, f, "golang"), poster.Request{Text: "hi"})
	require.Error(t, err)
	assert.Empty(t, f.submits)
	assert.Contains(t, strings.Join(lines, "\n"), "reddit login")
}

func TestEmptyTitleRejected(t *testing.T) {
	f := newFakeReddit(t)
	_, err := publish(newPublisher(t, f, "golang"), poster.Request{Text: "   "})
	var verr poster.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Zero(t, f.tokens)
}
