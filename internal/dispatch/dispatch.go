// Package dispatch runs one cross-post job across the selected platforms.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HC91Dev/MultiPlatformPoster/internal/config"
	"github.com/HC91Dev/MultiPlatformPoster/internal/logutil"
	"github.com/HC91Dev/MultiPlatformPoster/internal/media"
	"github.com/HC91Dev/MultiPlatformPoster/internal/metrics"
	"github.com/HC91Dev/MultiPlatformPoster/internal/poster"
)

const (
	scheduleLayout = "2006-01-02 15:04"
	eventBuffer    = 64
)

// Job is one cross-post request with a snapshot of the credentials.
type Job struct {
	Post         poster.Post
	Platforms    []poster.Platform
	Credentials  config.Credentials
	DiscordMode  poster.DiscordMode
	DiscordNitro bool
	// DryRun adapts media and reports the plan without building publishers.
	DryRun bool
}

// Result is the outcome of one platform.
type Result struct {
	Platform poster.Platform
	Err      error
	Elapsed  time.Duration
}

// Summary is what a finished run reports.
type Summary struct {
	RunID    string
	Results  []Result
	Canceled bool
	// Removed counts temporary files deleted during cleanup.
	Removed int
}

// Failed returns the results that carry an error.
func (s Summary) Failed() []Result {
	var out []Result
	for _, r := range s.Results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Err joins every platform failure, or nil.
func (s Summary) Err() error {
	var errs []error
	for _, r := range s.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", r.Platform, r.Err))
	}
	return errors.Join(errs...)
}

// Tools are the run-scoped helpers a publisher may need.
type Tools struct {
	Temps  *media.TempFiles
	Images *media.ImageCompressor
	Videos *media.VideoCompressor
}

// Builder creates the publisher for one platform from a credentials snapshot.
type Builder func(p poster.Platform, creds config.Credentials, tools Tools) (poster.Publisher, error)

// Dispatcher runs jobs. The zero value is not usable; see New.
type Dispatcher struct {
	Build      Builder
	Transcoder media.Transcoder
	Metrics    *metrics.Metrics
	// TempDir receives compressed media; empty keeps outputs next to sources.
	TempDir string
	Now     func() time.Time
}

// New returns a dispatcher using build for publishers and ffmpeg for video.
func New(build Builder) *Dispatcher {
	return &Dispatcher{
		Build:      build,
		Transcoder: media.FFmpeg{},
		Now:        time.Now,
	}
}

// Handle is a running job.
type Handle struct {
	events  chan poster.Event
	done    chan struct{}
	summary Summary
}

// Events yields status events in emission order. The channel closes after
// the completion event.
func (h *Handle) Events() <-chan poster.Event { return h.events }

// Wait blocks until the run ends, discarding unread events.
func (h *Handle) Wait() Summary {
	for range h.events {
	}
	<-h.done
	return h.summary
}

// Start runs job on its own goroutine.
func (d *Dispatcher) Start(ctx context.Context, job Job) *Handle {
	h := &Handle{
		events: make(chan poster.Event, eventBuffer),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		h.summary = d.run(ctx, job, h.events)
	}()
	return h
}

// Run executes job and hands each event to emit before returning.
func (d *Dispatcher) Run(ctx context.Context, job Job, emit func(poster.Event)) Summary {
	h := d.Start(ctx, job)
	for ev := range h.Events() {
		if emit != nil {
			emit(ev)
		}
	}
	return h.Wait()
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Dispatcher) run(ctx context.Context, job Job, out chan<- poster.Event) (summary Summary) {
	summary.RunID = uuid.NewString()
	log := logutil.With("run", summary.RunID)
	status := poster.NewReporter(func(e poster.Event) { out <- e })

	temps := media.NewTempFiles()
	adapter := media.NewAdapter(temps, d.Transcoder)
	adapter.Images.Dir = d.TempDir
	adapter.Videos.Dir = d.TempDir
	if d.Metrics != nil {
		adapter.Recorder = d.Metrics
	}
	tools := Tools{Temps: temps, Images: adapter.Images, Videos: adapter.Videos}

	defer func() {
		if temps.Len() > 0 {
			log.Debug("removing temp files", "count", temps.Len(), "paths", temps.Paths())
		}
		summary.Removed = temps.Cleanup(status)
		status.Completed("Posting completed!")
		close(out)
		log.Debug("run finished", "platforms", len(summary.Results), "failed", len(summary.Failed()), "canceled", summary.Canceled)
	}()

	if at := job.Post.ScheduledAt; !at.IsZero() {
		if wait := at.Sub(d.now()); wait > 0 {
			status.Infof("Waiting until %s...", at.Format(scheduleLayout))
			log.Debug("waiting for schedule", "at", at, "wait", wait)
			if err := poster.Pause(ctx, wait); err != nil {
				summary.Canceled = true
				status.Warnf("Scheduled post canceled: %v", err)
				return summary
			}
		}
	}

	status.Infof("Starting posts with %d media files...", len(job.Post.Media))
	for _, p := range job.Platforms {
		res := d.publish(ctx, p, job, adapter, tools, status.For(p))
		summary.Results = append(summary.Results, res)
		if res.Err != nil {
			log.Debug("platform failed", "platform", p, "err", res.Err)
		}
	}
	return summary
}

func (d *Dispatcher) publish(ctx context.Context, p poster.Platform, job Job, adapter *media.Adapter, tools Tools, status *poster.Reporter) (res Result) {
	res.Platform = p
	start := d.now()
	status.Infof("--- Processing %s ---", p)

	defer func() {
		if r := recover(); r != nil {
			logutil.Errorf("publisher panic: platform=%s panic=%v\n%s", p, r, debug.Stack())
			res.Err = fmt.Errorf("panic: %v", r)
		}
		res.Elapsed = d.now().Sub(start)
		if res.Err != nil {
			status.Failf("%s", describe(p, res.Err))
		}
		d.observe(p, job.DryRun, res)
	}()

	var pub poster.Publisher
	if !job.DryRun {
		var err error
		if pub, err = d.Build(p, job.Credentials, tools); err != nil {
			res.Err = err
			return res
		}
	}

	files := adapter.Adapt(ctx, job.Post.Media, p, media.Options{
		ExtendedQuota: job.DiscordNitro,
		DiscordMode:   job.DiscordMode,
	}, status)

	if job.DryRun {
		status.Infof("[dry-run] would post %d chars with %d media files to %s", len([]rune(job.Post.Text)), len(files), p)
		return res
	}

	res.Err = pub.Publish(ctx, poster.Request{
		Text:        job.Post.Text,
		Media:       files,
		DiscordMode: job.DiscordMode,
	}, status)
	return res
}

func (d *Dispatcher) observe(p poster.Platform, dryRun bool, res Result) {
	outcome := metrics.OutcomeSuccess
	var missing poster.MissingCredentialsError
	switch {
	case dryRun:
		outcome = metrics.OutcomeSkipped
	case errors.As(res.Err, &missing):
		outcome = metrics.OutcomeSkipped
	case res.Err != nil:
		outcome = metrics.OutcomeFailure
	}
	d.Metrics.ObservePublish(p, outcome, res.Elapsed)
}

// describe renders a platform failure as one status line.
func describe(p poster.Platform, err error) string {
	var missing poster.MissingCredentialsError
	if errors.As(err, &missing) {
		if missing.Provider != "" && missing.Provider != p.String() {
			return fmt.Sprintf("%s: Missing %s %s", p, missing.Provider, strings.Join(missing.Fields, ", "))
		}
		return fmt.Sprintf("%s: Missing %s", p, strings.Join(missing.Fields, ", "))
	}
	var invalid poster.ValidationError
	if errors.As(err, &invalid) {
		return fmt.Sprintf("%s: %s", p, invalid.Reason)
	}
	return fmt.Sprintf("%s failed: %v", p, err)
}
