package ui

import (
	"fmt"
	"image"
	"strings"
	"time"

	"gioui.org/font"
	"gioui.org/io/clipboard"
	"gioui.org/io/event"
	"gioui.org/io/key"
	"gioui.org/io/transfer"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/unit"
	"gioui.org/widget"
	"gioui.org/widget/material"

	"pinfield/cmd/pinfield-gui/internal/theme"
	"pinfield/internal/digits"
	"pinfield/internal/field"
)

const (
	shakeDuration   = 400 * time.Millisecond
	resendNoteDelay = 2 * time.Second
)

// Pinpad is the main UI component: a row of digit cells, a status line
// and the resend control, all driven by the field engine.
type Pinpad struct {
	theme *theme.Theme
	field *field.Field

	cells  []widget.Clickable
	resend widget.Clickable

	keyFilters []event.Filter

	focused    bool
	shakeStart time.Time
	resendNote time.Time
}

// NewPinpad creates a new pinpad bound to f.
func NewPinpad(t *theme.Theme, f *field.Field) *Pinpad {
	p := &Pinpad{
		theme: t,
		field: f,
		cells: make([]widget.Clickable, f.Len()),
	}

	p.keyFilters = []event.Filter{
		key.FocusFilter{Target: p},
		key.Filter{Focus: p, Name: key.NameDeleteBackward},
		key.Filter{Focus: p, Name: key.NameLeftArrow},
		key.Filter{Focus: p, Name: key.NameRightArrow},
		key.Filter{Focus: p, Name: "R"},
		key.Filter{Focus: p, Name: "V", Required: key.ModShortcut},
		transfer.TargetFilter{Target: p, Type: "application/text"},
	}
	for d := '0'; d <= '9'; d++ {
		p.keyFilters = append(p.keyFilters, key.Filter{Focus: p, Name: key.Name(d)})
	}

	return p
}

// Shake starts the error animation. Safe to call from any goroutine
// as long as the caller invalidates the window afterwards.
func (p *Pinpad) Shake() {
	p.shakeStart = time.Now()
}

// NotifyResend flashes the "code re-sent" note.
func (p *Pinpad) NotifyResend() {
	p.resendNote = time.Now()
}

// Layout processes pending input events and renders the pinpad.
func (p *Pinpad) Layout(gtx layout.Context) layout.Dimensions {
	paint.Fill(gtx.Ops, p.theme.Palette.Background)

	p.handleKeys(gtx)
	p.handleClicks(gtx)

	if !p.focused {
		gtx.Execute(key.FocusCmd{Tag: p})
	}

	v := p.field.View()

	return layout.UniformInset(p.theme.Config.Padding).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return layout.Flex{Axis: layout.Vertical, Alignment: layout.Middle}.Layout(gtx,
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				title := material.H6(p.theme.Theme, "Enter verification code")
				title.Color = p.theme.Palette.Text
				title.TextSize = p.theme.Config.FontTitle
				return title.Layout(gtx)
			}),
			layout.Rigid(layout.Spacer{Height: unit.Dp(24)}.Layout),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				return p.layoutCells(gtx, v)
			}),
			layout.Rigid(layout.Spacer{Height: unit.Dp(20)}.Layout),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				return p.layoutStatus(gtx, v)
			}),
			layout.Rigid(layout.Spacer{Height: unit.Dp(12)}.Layout),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				return p.layoutResend(gtx, v)
			}),
		)
	})
}

func (p *Pinpad) handleKeys(gtx layout.Context) {
	for {
		ev, ok := gtx.Event(p.keyFilters...)
		if !ok {
			break
		}
		switch e := ev.(type) {
		case key.FocusEvent:
			p.focused = e.Focus
		case transfer.DataEvent:
			p.readPaste(e)
		case key.Event:
			if e.State != key.Press {
				continue
			}
			p.handleKey(gtx, e)
		}
	}
	event.Op(gtx.Ops, p)
}

func (p *Pinpad) handleKey(gtx layout.Context, e key.Event) {
	v := p.field.View()
	switch e.Name {
	case key.NameDeleteBackward:
		// Clear in place when the focused cell is filled, otherwise
		// step back and clear the previous cell.
		focus := v.Focus
		if focus < 0 {
			focus = 0
		}
		if focus < len(v.Cells) && v.Cells[focus].Filled {
			p.field.Dispatch(field.EnterDigit{Digit: digits.None, Index: focus})
		} else {
			p.field.Dispatch(field.Backspace{})
		}
	case key.NameLeftArrow:
		if v.Focus > 0 {
			p.field.Dispatch(field.TapCell{Index: v.Focus - 1})
		}
	case key.NameRightArrow:
		if v.Focus >= 0 && v.Focus < len(v.Cells)-1 {
			p.field.Dispatch(field.TapCell{Index: v.Focus + 1})
		}
	case "R":
		p.field.Dispatch(field.ResendTapped{})
	case "V":
		if e.Modifiers.Contain(key.ModShortcut) {
			gtx.Execute(clipboard.ReadCmd{Tag: p})
		}
	default:
		if len(e.Name) == 1 && e.Name[0] >= '0' && e.Name[0] <= '9' {
			focus := v.Focus
			if focus < 0 {
				focus = 0
			}
			p.field.Dispatch(field.EnterDigit{
				Digit: digits.Digit(e.Name[0] - '0'),
				Index: focus,
			})
		}
	}
}

func (p *Pinpad) readPaste(e transfer.DataEvent) {
	r := e.Open()
	defer r.Close()
	var sb strings.Builder
	buf := make([]byte, 256)
	for {
		n, err := r.Read(buf)
		sb.Write(buf[:n])
		if err != nil {
			break
		}
	}
	p.field.Dispatch(field.Paste{Text: sb.String()})
}

func (p *Pinpad) handleClicks(gtx layout.Context) {
	for i := range p.cells {
		if p.cells[i].Clicked(gtx) {
			p.field.Dispatch(field.TapCell{Index: i})
			gtx.Execute(key.FocusCmd{Tag: p})
		}
	}
	if p.resend.Clicked(gtx) {
		p.field.Dispatch(field.ResendTapped{})
		gtx.Execute(key.FocusCmd{Tag: p})
	}
}

func (p *Pinpad) layoutCells(gtx layout.Context, v field.View) layout.Dimensions {
	// The shake animation nudges the whole row sideways for a few frames.
	if dx := p.shakeOffset(); dx != 0 {
		defer op.Offset(image.Pt(gtx.Dp(unit.Dp(dx)), 0)).Push(gtx.Ops).Pop()
		gtx.Execute(op.InvalidateCmd{})
	}

	children := make([]layout.FlexChild, 0, 2*len(v.Cells))
	for i := range v.Cells {
		i := i
		if i > 0 {
			children = append(children, layout.Rigid(layout.Spacer{Width: p.theme.Config.CellGap}.Layout))
		}
		children = append(children, layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			return p.layoutCell(gtx, v, i)
		}))
	}
	return layout.Flex{Axis: layout.Horizontal}.Layout(gtx, children...)
}

func (p *Pinpad) layoutCell(gtx layout.Context, v field.View, i int) layout.Dimensions {
	return p.cells[i].Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		size := image.Pt(gtx.Dp(p.theme.Config.CellWidth), gtx.Dp(p.theme.Config.CellHeight))
		gtx.Constraints = layout.Exact(size)

		focused := v.Enabled && i == v.Focus
		fill := p.theme.Palette.Cell
		border := p.theme.Palette.Border
		if focused {
			fill = p.theme.Palette.CellFocused
			border = p.theme.Palette.BorderFocus
		}
		if v.Verify.Status == field.VerifyError {
			border = p.theme.Palette.Error
		}
		if v.Verify.Status == field.VerifySuccess {
			border = p.theme.Palette.Success
		}

		radius := gtx.Dp(p.theme.Config.CornerRadius)
		outer := clip.UniformRRect(image.Rectangle{Max: size}, radius).Op(gtx.Ops)
		paint.FillShape(gtx.Ops, border, outer)
		inner := clip.UniformRRect(image.Rect(1, 1, size.X-1, size.Y-1), radius).Op(gtx.Ops)
		paint.FillShape(gtx.Ops, fill, inner)

		label := ""
		if c := v.Cells[i]; c.Filled {
			if v.Secure {
				label = "•"
			} else {
				label = fmt.Sprintf("%d", c.Digit)
			}
		}
		return layout.Center.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
			l := material.Label(p.theme.Theme, p.theme.Config.FontDigit, label)
			l.Color = p.theme.Palette.Text
			l.Font.Weight = font.Medium
			return l.Layout(gtx)
		})
	})
}

func (p *Pinpad) layoutStatus(gtx layout.Context, v field.View) layout.Dimensions {
	text := ""
	color := p.theme.Palette.TextMuted
	switch v.Verify.Status {
	case field.VerifyLoading:
		text = "Verifying..."
	case field.VerifySuccess:
		text = "✓ Verified"
		color = p.theme.Palette.Success
	case field.VerifyError:
		text = v.Verify.Message
		color = p.theme.Palette.Error
	default:
		if v.Attempts > 0 {
			text = fmt.Sprintf("Attempts: %d", v.Attempts)
		}
	}

	l := material.Label(p.theme.Theme, p.theme.Config.FontBody, text)
	l.Color = color
	return l.Layout(gtx)
}

func (p *Pinpad) layoutResend(gtx layout.Context, v field.View) layout.Dimensions {
	if v.Verify.Status == field.VerifySuccess {
		return layout.Dimensions{}
	}

	if time.Since(p.resendNote) < resendNoteDelay {
		l := material.Label(p.theme.Theme, p.theme.Config.FontBody, "Code re-sent")
		l.Color = p.theme.Palette.Primary
		gtx.Execute(op.InvalidateCmd{})
		return l.Layout(gtx)
	}

	if !v.Expired {
		l := material.Label(p.theme.Theme, p.theme.Config.FontBody,
			fmt.Sprintf("Resend available in %ds", v.Remaining))
		l.Color = p.theme.Palette.TextMuted
		return l.Layout(gtx)
	}

	btn := material.Button(p.theme.Theme, &p.resend, "Resend code")
	btn.Background = p.theme.Palette.Primary
	btn.TextSize = p.theme.Config.FontBody
	return btn.Layout(gtx)
}

// shakeOffset returns the horizontal displacement in dp for the
// current animation frame, or 0 when no shake is active.
func (p *Pinpad) shakeOffset() int {
	elapsed := time.Since(p.shakeStart)
	if elapsed < 0 || elapsed >= shakeDuration {
		return 0
	}
	phase := int(elapsed / (shakeDuration / 8))
	amp := 6 - phase/2
	if phase%2 == 0 {
		return amp
	}
	return -amp
}
