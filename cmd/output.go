/*
Copyright © 2025 HC91Dev

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/HC91Dev/MultiPlatformPoster/internal/poster"
)

// eventPrinter writes status events as timestamped lines, colored when out is
// a terminal.
type eventPrinter struct {
	out    io.Writer
	styles map[poster.Kind]lipgloss.Style
	stamp  lipgloss.Style
	header lipgloss.Style
}

func newEventPrinter(out io.Writer) *eventPrinter {
	r := lipgloss.NewRenderer(out)
	return &eventPrinter{
		out: out,
		styles: map[poster.Kind]lipgloss.Style{
			poster.KindInfo:      r.NewStyle(),
			poster.KindSuccess:   r.NewStyle().Foreground(lipgloss.Color("82")),
			poster.KindWarning:   r.NewStyle().Foreground(lipgloss.Color("214")),
			poster.KindFailure:   r.NewStyle().Foreground(lipgloss.Color("196")),
			poster.KindCompleted: r.NewStyle().Bold(true).Foreground(lipgloss.Color("82")),
		},
		stamp:  r.NewStyle().Foreground(lipgloss.Color("241")),
		header: r.NewStyle().Bold(true).Foreground(lipgloss.Color("99")),
	}
}

// Print renders one event.
func (p *eventPrinter) Print(e poster.Event) {
	style := p.styles[e.Kind]
	if e.Kind == poster.KindInfo && strings.HasPrefix(e.Text, "--- ") {
		style = p.header
	}
	fmt.Fprintf(p.out, "%s %s\n", p.stamp.Render(e.Time.Format("[15:04:05]")), style.Render(e.String()))
}
