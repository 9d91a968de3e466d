package poster

import (
	"fmt"
	"time"
)

// Kind classifies a status event.
type Kind int

const (
	KindInfo Kind = iota
	KindSuccess
	KindWarning
	KindFailure
	KindCompleted
)

func (k Kind) prefix() string {
	switch k {
	case KindSuccess, KindCompleted:
		return "✓ "
	case KindWarning:
		return "⚠ "
	case KindFailure:
		return "✗ "
	default:
		return ""
	}
}

// Event is one timestamped, human readable status line.
type Event struct {
	Time     time.Time
	Kind     Kind
	Platform Platform
	Text     string
}

// String renders the event with its kind marker.
func (e Event) String() string {
	return e.Kind.prefix() + e.Text
}

// Reporter emits status events. A nil *Reporter discards everything.
type Reporter struct {
	emit     func(Event)
	platform Platform
	now      func() time.Time
}

// NewReporter returns a reporter delivering events to emit.
func NewReporter(emit func(Event)) *Reporter {
	return &Reporter{emit: emit, now: time.Now}
}

// For returns a reporter that tags events with the given platform.
func (r *Reporter) For(p Platform) *Reporter {
	if r == nil {
		return nil
	}
	return &Reporter{emit: r.emit, platform: p, now: r.now}
}

func (r *Reporter) send(kind Kind, format string, args ...any) {
	if r == nil || r.emit == nil {
		return
	}
	r.emit(Event{Time: r.now(), Kind: kind, Platform: r.platform, Text: fmt.Sprintf(format, args...)})
}

// Infof reports progress.
func (r *Reporter) Infof(format string, args ...any) { r.send(KindInfo, format, args...) }

// Successf reports a completed step.
func (r *Reporter) Successf(format string, args ...any) { r.send(KindSuccess, format, args...) }

// Warnf reports a skipped file or degraded result.
func (r *Reporter) Warnf(format string, args ...any) { r.send(KindWarning, format, args...) }

// Failf reports a failed step.
func (r *Reporter) Failf(format string, args ...any) { r.send(KindFailure, format, args...) }

// Completed emits the terminal marker of a run.
func (r *Reporter) Completed(format string, args ...any) { r.send(KindCompleted, format, args...) }
