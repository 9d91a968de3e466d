package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/michimani/gotwi"
	"github.com/michimani/gotwi/media/upload"
	uploadtypes "github.com/michimani/gotwi/media/upload/types"
	"github.com/michimani/gotwi/resources"
	"github.com/michimani/gotwi/tweet/managetweet"
	managetweettypes "github.com/michimani/gotwi/tweet/managetweet/types"
	"github.com/michimani/gotwi/user/userlookup"
	userlookuptypes "github.com/michimani/gotwi/user/userlookup/types"

	"github.com/HC91Dev/MultiPlatformPoster/internal/logutil"
	"github.com/HC91Dev/MultiPlatformPoster/internal/media"
	"github.com/HC91Dev/MultiPlatformPoster/internal/poster"
)

const (
	metadataEndpoint = "https://upload.twitter.com/1.1/media/metadata/create.json"

	// chunkSize stays under the 5MB APPEND segment ceiling.
	chunkSize = 4 << 20

	maxProcessingWaitSecs = 20
)

// gotwiAPI is the live X API backed by gotwi.
type gotwiAPI struct {
	client *gotwi.Client
}

func (g *gotwiAPI) VerifyCredentials(ctx context.Context) error {
	if _, err := userlookup.GetMe(ctx, g.client, &userlookuptypes.GetMeInput{}); err != nil {
		return fmt.Errorf("users/me: %w", unwrapGotwiError(err))
	}
	return nil
}

func (g *gotwiAPI) CreateTweet(ctx context.Context, text string, mediaIDs []string) (string, error) {
	input := &managetweettypes.CreateInput{
		Text: gotwi.String(text),
	}
	if len(mediaIDs) > 0 {
		input.Media = &managetweettypes.CreateInputMedia{MediaIDs: mediaIDs}
	}

	logutil.Debugf("posting tweet: media_count=%d", len(mediaIDs))
	out, err := managetweet.Create(ctx, g.client, input)
	if err != nil {
		return "", unwrapGotwiError(err)
	}
	id := gotwi.StringValue(out.Data.ID)
	logutil.Debugf("tweet posted: id=%s", id)
	return id, nil
}

func (g *gotwiAPI) UploadMedia(ctx context.Context, path, altText string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", poster.ValidationError{Provider: providerName, Reason: fmt.Sprintf("media %q not found", path), Err: err}
		}
		return "", fmt.Errorf("read media: %w", err)
	}

	mediaType, category, err := resolveMediaType(path)
	if err != nil {
		return "", err
	}

	logutil.Debugf("initialize upload: media_type=%s category=%s bytes=%d", mediaType, category, len(data))
	initRes, err := upload.Initialize(ctx, g.client, &uploadtypes.InitializeInput{
		MediaType:     mediaType,
		TotalBytes:    len(data),
		MediaCategory: category,
	})
	if err != nil {
		return "", fmt.Errorf("initialize upload: %w", unwrapGotwiError(err))
	}
	if err := partialError(initRes.Errors); err != nil {
		return "", fmt.Errorf("initialize upload: %w", err)
	}
	mediaID := initRes.Data.MediaID

	for segment, offset := 0, 0; offset < len(data); segment, offset = segment+1, offset+chunkSize {
		end := min(offset+chunkSize, len(data))
		appendIn := &uploadtypes.AppendInput{
			MediaID:      mediaID,
			Media:        bytes.NewReader(data[offset:end]),
			SegmentIndex: segment,
		}
		appendIn.GenerateBoundary()

		logutil.Debugf("append upload: media_id=%s segment=%d bytes=%d", mediaID, segment, end-offset)
		appendRes, err := upload.Append(ctx, g.client, appendIn)
		if err != nil {
			return "", fmt.Errorf("append upload: %w", unwrapGotwiError(err))
		}
		if err := partialError(appendRes.Errors); err != nil {
			return "", fmt.Errorf("append upload: %w", err)
		}
	}

	finalizeRes, err := upload.Finalize(ctx, g.client, &uploadtypes.FinalizeInput{MediaID: mediaID})
	if err != nil {
		return "", fmt.Errorf("finalize upload: %w", unwrapGotwiError(err))
	}
	if err := partialError(finalizeRes.Errors); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	state := finalizeRes.Data.ProcessingInfo.State
	logutil.Debugf("finalize state=%s media_id=%s", state, mediaID)
	switch state {
	case "", resources.ProcessingInfoStateSucceeded:
	case resources.ProcessingInfoStateInProgress, resources.ProcessingInfoStatePending:
		secs := min(max(int(finalizeRes.Data.ProcessingInfo.CheckAfterSecs), 1), maxProcessingWaitSecs)
		if err := sleepCtx(ctx, time.Duration(secs)*time.Second); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("media processing failed: state=%s", state)
	}

	if alt := strings.TrimSpace(altText); alt != "" && category != categoryVideo {
		if err := g.setAltText(ctx, mediaID, alt); err != nil {
			logutil.Debugf("alt text failed: media_id=%s err=%v", mediaID, err)
		}
	}
	return mediaID, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (g *gotwiAPI) setAltText(ctx context.Context, mediaID, altText string) error {
	params := &metadataParameters{
		mediaID: mediaID,
		altText: altText,
	}
	ctx = context.WithValue(ctx, "Content-Type", "application/json;charset=UTF-8")
	if err := g.client.CallAPI(ctx, metadataEndpoint, http.MethodPost, params, &metadataResponse{}); err != nil {
		return fmt.Errorf("set alt text: %w", unwrapGotwiError(err))
	}
	return nil
}

const (
	categoryImage = uploadtypes.MediaCategory("tweet_image")
	categoryGIF   = uploadtypes.MediaCategory("tweet_gif")
	categoryVideo = uploadtypes.MediaCategory("tweet_video")
)

func resolveMediaType(path string) (uploadtypes.MediaType, uploadtypes.MediaCategory, error) {
	switch ct := media.ContentType(path); {
	case strings.HasPrefix(ct, "image/gif"):
		return uploadtypes.MediaType(ct), categoryGIF, nil
	case strings.HasPrefix(ct, "image/jpeg"), strings.HasPrefix(ct, "image/png"), strings.HasPrefix(ct, "image/webp"):
		return uploadtypes.MediaType(ct), categoryImage, nil
	case strings.HasPrefix(ct, "video/mp4"), strings.HasPrefix(ct, "video/quicktime"):
		return uploadtypes.MediaType("video/mp4"), categoryVideo, nil
	}
	return "", "", poster.ValidationError{Provider: providerName, Reason: fmt.Sprintf("unsupported media type for %q", path)}
}

func partialError(partials []resources.PartialError) error {
	if len(partials) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(partials))
	for _, pe := range partials {
		switch {
		case pe.Detail != nil && *pe.Detail != "":
			msgs = append(msgs, *pe.Detail)
		case pe.Title != nil && *pe.Title != "":
			msgs = append(msgs, *pe.Title)
		}
	}
	if len(msgs) == 0 {
		msgs = append(msgs, "unknown error")
	}
	return &statusError{msg: joinMessages(msgs)}
}

func unwrapGotwiError(err error) error {
	var gwErr *gotwi.GotwiError
	if errors.As(err, &gwErr) && gwErr != nil {
		return &statusError{code: gwErr.StatusCode, msg: summarizeGotwiError(gwErr)}
	}
	return poster.TransportError{Provider: providerName, Err: err}
}

func summarizeGotwiError(err *gotwi.GotwiError) string {
	parts := make([]string, 0, 4)
	if err.Title != "" {
		parts = append(parts, err.Title)
	}
	if err.Detail != "" {
		parts = append(parts, err.Detail)
	}
	for _, apiErr := range err.APIErrors {
		if apiErr.Message != "" {
			parts = append(parts, apiErr.Message)
		}
	}
	if len(parts) == 0 {
		if msg := err.Error(); msg != "" {
			parts = append(parts, msg)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "X API request failed")
	}
	return joinMessages(parts)
}

// metadataParameters implements gotwi's parameter interface for the v1.1
// alt text endpoint, which gotwi does not wrap.
type metadataParameters struct {
	mediaID     string
	altText     string
	accessToken string
}

func (p *metadataParameters) SetAccessToken(token string) { p.accessToken = token }

func (p *metadataParameters) AccessToken() string { return p.accessToken }

func (p *metadataParameters) ResolveEndpoint(endpointBase string) string { return endpointBase }

func (p *metadataParameters) Body() (io.Reader, error) {
	body := struct {
		MediaID string `json:"media_id"`
		AltText struct {
			Text string `json:"text"`
		} `json:"alt_text"`
	}{}
	body.MediaID = p.mediaID
	body.AltText.Text = p.altText

	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(buf), nil
}

func (p *metadataParameters) ParameterMap() map[string]string { return map[string]string{} }

type metadataResponse struct{}

func (metadataResponse) HasPartialError() bool { return false }
