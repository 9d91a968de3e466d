package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/HC91Dev/MultiPlatformPoster/internal/logutil"
	"github.com/HC91Dev/MultiPlatformPoster/internal/media"
	"github.com/HC91Dev/MultiPlatformPoster/internal/poster"
)

const maxErrorBody = 4 << 10

type field struct {
	name, value string
}

type filePart struct {
	field string
	path  string
}

type embed struct {
	Image embedImage `json:"image"`
}

type embedImage struct {
	URL string `json:"url"`
}

type message struct {
	Content string  `json:"content,omitempty"`
	Embeds  []embed `json:"embeds,omitempty"`
}

// sendJSON posts a JSON message to the webhook.
func (p *Publisher) sendJSON(ctx context.Context, msg message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return p.send(ctx, bytes.NewReader(body), "application/json")
}

// sendMultipart streams fields and files as multipart/form-data.
func (p *Publisher) sendMultipart(ctx context.Context, fields []field, files []filePart) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeParts(mw, fields, files)
		if err == nil {
			err = mw.Close()
		}
		_ = pw.CloseWithError(err)
	}()
	defer func() { _ = pr.Close() }()
	return p.send(ctx, pr, mw.FormDataContentType())
}

func writeParts(mw *multipart.Writer, fields []field, files []filePart) error {
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return err
		}
	}
	for _, fp := range files {
		if err := writeFile(mw, fp); err != nil {
			return err
		}
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeFile(mw *multipart.Writer, fp filePart) error {
	f, err := os.Open(fp.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", fp.path, err)
	}
	defer f.Close()

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(fp.field), quoteEscaper.Replace(filepath.Base(fp.path))))
	h.Set("Content-Type", media.ContentType(fp.path))
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

func (p *Publisher) send(ctx context.Context, body io.Reader, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.webhookURL, body)
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	logutil.Debugf("discord webhook post: content_type=%s", contentType)
	resp, err := p.client.Do(req)
	if err != nil {
		return poster.TransportError{Provider: providerName, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return poster.APIError{Provider: providerName, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
}
