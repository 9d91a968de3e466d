// Package tui holds the interactive credential setup wizard.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/HC91Dev/MultiPlatformPoster/internal/config"
)

// Step is the current wizard stage.
type Step int

const (
	StepFields Step = iota
	StepValidating
	StepDone
	StepFailed
)

type validationResultMsg struct {
	err error
}

// ValidateFn checks a filled-in record. It must not block for long.
type ValidateFn func(ctx context.Context, section string, rec config.Record) error

// cancelHolder shares a cancel func across copies of the value-receiver model.
type cancelHolder struct {
	cancel context.CancelFunc
}

// SetupModel edits one credential section, one field per step.
type SetupModel struct {
	section       config.Section
	inputs        []textinput.Model
	focus         int
	step          Step
	spinner       spinner.Model
	validateFn    ValidateFn
	cancelCtx     *cancelHolder
	validationErr error
	quitting      bool
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	brandStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// NewSetupModel returns a wizard for section pre-filled from current.
// validate may be nil, in which case the record is accepted as entered.
func NewSetupModel(section config.Section, current config.Record, validate ValidateFn) SetupModel {
	inputs := make([]textinput.Model, len(section.Fields))
	for i, f := range section.Fields {
		in := textinput.New()
		in.Placeholder = f.Default
		if in.Placeholder == "" {
			in.Placeholder = f.Name
		}
		in.Width = 60
		if f.Secret {
			in.EchoMode = textinput.EchoPassword
		}
		if v := current[f.Name]; v != "" {
			in.SetValue(v)
		}
		inputs[i] = in
	}
	if len(inputs) > 0 {
		inputs[0].Focus()
	}

	s := spinner.New()
	s.Spinner = spinner.Dot

	return SetupModel{
		section:    section,
		inputs:     inputs,
		spinner:    s,
		validateFn: validate,
		cancelCtx:  &cancelHolder{},
	}
}

// Init implements tea.Model.
func (m SetupModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m SetupModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEscape:
			m.quitting = true
			if m.cancelCtx.cancel != nil {
				m.cancelCtx.cancel()
			}
			return m, tea.Quit
		}

		switch m.step {
		case StepFields:
			return m.updateInput(msg)
		case StepFailed:
			return m.updateFailed(msg)
		}

	case validationResultMsg:
		m.cancelCtx.cancel = nil
		if msg.err == nil {
			m.step = StepDone
			return m, tea.Quit
		}
		m.validationErr = msg.err
		m.step = StepFailed
		return m, nil

	case spinner.TickMsg:
		if m.step == StepValidating {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
	}

	return m, nil
}

func (m SetupModel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		field := m.section.Fields[m.focus]
		if strings.TrimSpace(m.inputs[m.focus].Value()) == "" && field.Default != "" {
			m.inputs[m.focus].SetValue(field.Default)
		}
		if m.focus == len(m.inputs)-1 {
			m.inputs[m.focus].Blur()
			return m.finish()
		}
		return m.moveFocus(1)

	case tea.KeyShiftTab, tea.KeyUp:
		if m.focus > 0 {
			return m.moveFocus(-1)
		}
		return m, nil

	case tea.KeyTab, tea.KeyDown:
		if m.focus < len(m.inputs)-1 {
			return m.moveFocus(1)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m SetupModel) moveFocus(delta int) (tea.Model, tea.Cmd) {
	m.inputs[m.focus].Blur()
	m.focus += delta
	m.inputs[m.focus].Focus()
	return m, textinput.Blink
}

func (m SetupModel) finish() (tea.Model, tea.Cmd) {
	if m.validateFn == nil {
		m.step = StepDone
		return m, tea.Quit
	}
	m.step = StepValidating
	return m, tea.Batch(m.startValidation(), m.spinner.Tick)
}

func (m SetupModel) updateFailed(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type != tea.KeyRunes || len(msg.Runes) == 0 {
		return m, nil
	}
	switch msg.Runes[0] {
	case 'r':
		m.step = StepValidating
		m.validationErr = nil
		return m, tea.Batch(m.startValidation(), m.spinner.Tick)
	case 'e':
		m.step = StepFields
		m.validationErr = nil
		m.focus = 0
		m.inputs[0].Focus()
		return m, textinput.Blink
	case 's':
		m.step = StepDone
		return m, tea.Quit
	case 'q':
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m SetupModel) startValidation() tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelCtx.cancel = cancel
	name := m.section.Name
	rec := m.Result()
	fn := m.validateFn
	return func() tea.Msg {
		return validationResultMsg{err: fn(ctx, name, rec)}
	}
}

// View implements tea.Model.
func (m SetupModel) View() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(brandStyle.Render("   multipost"))
	b.WriteString(titleStyle.Render(" - " + m.section.Name + " credentials"))
	b.WriteString("\n\n")

	switch m.step {
	case StepFields:
		for i := 0; i < m.focus; i++ {
			b.WriteString(fmt.Sprintf("  %s: %s\n", m.section.Fields[i].Name, m.display(i)))
		}
		if m.focus > 0 {
			b.WriteString("\n")
		}
		f := m.section.Fields[m.focus]
		b.WriteString(stepStyle.Render(fmt.Sprintf("Step %d of %d: %s", m.focus+1, len(m.inputs), f.Name)))
		b.WriteString("\n")
		if f.Default != "" {
			b.WriteString(promptStyle.Render("(press Enter for default)"))
			b.WriteString("\n")
		}
		b.WriteString(m.inputs[m.focus].View())
		b.WriteString("\n\n")
		b.WriteString(promptStyle.Render("enter next  shift+tab back  esc cancel"))
		b.WriteString("\n")

	case StepValidating:
		m.writeSummary(&b)
		b.WriteString(m.spinner.View())
		b.WriteString(" Checking credentials...")
		b.WriteString("\n")

	case StepDone:
		b.WriteString(successStyle.Render("✓ Credentials ready"))
		b.WriteString("\n")

	case StepFailed:
		errMsg := "unknown error"
		if m.validationErr != nil {
			errMsg = m.validationErr.Error()
		}
		m.writeSummary(&b)
		b.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s", errMsg)))
		b.WriteString("\n\n")
		b.WriteString(promptStyle.Render("[r]etry  [e]dit  [s]ave anyway  [q]uit"))
		b.WriteString("\n")
	}

	return b.String()
}

func (m SetupModel) writeSummary(b *strings.Builder) {
	for i, f := range m.section.Fields {
		b.WriteString(fmt.Sprintf("  %s: %s\n", f.Name, m.display(i)))
	}
	b.WriteString("\n")
}

func (m SetupModel) display(i int) string {
	v := m.inputs[i].Value()
	if m.section.Fields[i].Secret {
		return strings.Repeat("*", len(v))
	}
	return v
}

// Result returns the entered record with values trimmed.
func (m SetupModel) Result() config.Record {
	rec := make(config.Record, len(m.inputs))
	for i, f := range m.section.Fields {
		rec[f.Name] = strings.TrimSpace(m.inputs[i].Value())
	}
	return rec
}

// ShouldSave reports whether the wizard completed without being cancelled.
func (m SetupModel) ShouldSave() bool {
	return m.step == StepDone && !m.quitting
}
