package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pinfield/internal/config"
	"pinfield/internal/digits"
	"pinfield/internal/field"
)

// Messages from the field hooks and the frame clock.
type (
	refreshMsg struct{}
	shakeMsg   struct{}
	resendMsg  struct{}
	frameMsg   time.Time
)

const frameInterval = 120 * time.Millisecond

var (
	cellStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	cellFocusedStyle = cellStyle.
				BorderForeground(lipgloss.Color("39")).
				Bold(true)

	cellDisabledStyle = cellStyle.
				BorderForeground(lipgloss.Color("236")).
				Foreground(lipgloss.Color("240"))

	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	titleStyle   = lipgloss.NewStyle().Bold(true)
	resendStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
)

type model struct {
	f   *field.Field
	cfg *config.Config

	spin   spinner.Model
	width  int
	height int

	// shakeFrames animates the error feedback; resendFrames flashes the
	// "code re-sent" note.
	shakeFrames  int
	resendFrames int
	verified     bool
}

func newModel(f *field.Field, cfg *config.Config) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	return model{f: f, cfg: cfg, spin: sp}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, frameCmd())
}

func frameCmd() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case frameMsg:
		if m.shakeFrames > 0 {
			m.shakeFrames--
		}
		if m.resendFrames > 0 {
			m.resendFrames--
		}
		return m, frameCmd()

	case refreshMsg:
		if m.f.View().Verify.Status == field.VerifySuccess {
			m.verified = true
		}
		return m, nil

	case shakeMsg:
		m.shakeFrames = 6
		return m, nil

	case resendMsg:
		m.resendFrames = 16
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit

	case tea.KeyEnter:
		if m.verified {
			return m, tea.Quit
		}
		return m, nil

	case tea.KeyBackspace:
		v := m.f.View()
		// The two-case contract: clear in place on a filled cell, step
		// back on an empty one.
		if v.Focus >= 0 && v.Cells[v.Focus].Filled {
			m.dispatch(field.EnterDigit{Digit: digits.None, Index: v.Focus})
		} else {
			m.dispatch(field.Backspace{})
		}
		return m, nil

	case tea.KeyLeft:
		v := m.f.View()
		if v.Focus > 0 {
			m.dispatch(field.TapCell{Index: v.Focus - 1})
		}
		return m, nil

	case tea.KeyRight:
		v := m.f.View()
		if v.Focus >= 0 && v.Focus < len(v.Cells)-1 {
			m.dispatch(field.TapCell{Index: v.Focus + 1})
		}
		return m, nil

	case tea.KeyRunes:
		if msg.Paste {
			m.dispatch(field.Paste{Text: string(msg.Runes)})
			return m, nil
		}
		for _, r := range msg.Runes {
			switch {
			case r >= '0' && r <= '9':
				v := m.f.View()
				target := v.Focus
				if target < 0 {
					target = 0
				}
				m.dispatch(field.EnterDigit{Digit: digits.FromRune(r), Index: target})
			case r == 'r' || r == 'R':
				m.dispatch(field.ResendTapped{})
			}
		}
		return m, nil
	}
	return m, nil
}

// dispatch forwards an action, swallowing precondition errors: a disabled
// field simply ignores typing in a terminal.
func (m model) dispatch(a field.Action) {
	_ = m.f.Dispatch(a)
}

func (m model) View() string {
	v := m.f.View()

	var b strings.Builder
	b.WriteString(titleStyle.Render("Enter verification code"))
	b.WriteString("\n\n")

	row := m.renderCells(v)
	if m.shakeFrames > 0 && m.shakeFrames%2 == 1 {
		row = " " + row
	}
	b.WriteString(row)
	b.WriteString("\n\n")
	b.WriteString(m.renderStatus(v))
	b.WriteString("\n\n")
	b.WriteString(mutedStyle.Render("type digits · backspace deletes · ctrl+v pastes · esc quits"))
	b.WriteString("\n")

	return b.String()
}

func (m model) renderCells(v field.View) string {
	cells := make([]string, len(v.Cells))
	for i, c := range v.Cells {
		glyph := " "
		if c.Filled {
			if v.Secure {
				glyph = "•"
			} else {
				glyph = string(c.Digit.Rune())
			}
		}
		style := cellStyle
		if !v.Enabled {
			style = cellDisabledStyle
		} else if i == v.Focus {
			style = cellFocusedStyle
		}
		cells[i] = style.Render(glyph)
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, cells...)
}

func (m model) renderStatus(v field.View) string {
	switch v.Verify.Status {
	case field.VerifyLoading:
		return m.spin.View() + " Verifying..."
	case field.VerifySuccess:
		return successStyle.Render("✓ Verified") + mutedStyle.Render("  press enter to exit")
	case field.VerifyError:
		return errStyle.Render("✗ " + v.Verify.Message)
	}

	if m.resendFrames > 0 {
		return okStyle.Render("Code re-sent")
	}
	if v.Expired {
		return resendStyle.Render("Press r to resend the code")
	}
	note := fmt.Sprintf("Resend available in %ds", v.Remaining)
	if v.Attempts > 0 {
		note += mutedStyle.Render(fmt.Sprintf("  (%d failed attempts)", v.Attempts))
	}
	return mutedStyle.Render(note)
}
