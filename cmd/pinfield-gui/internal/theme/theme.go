package theme

import (
	"image/color"
	"runtime"

	"gioui.org/unit"
	"gioui.org/widget/material"
)

// Palette defines the widget colors.
type Palette struct {
	Background  color.NRGBA
	Cell        color.NRGBA
	CellFocused color.NRGBA
	Border      color.NRGBA
	BorderFocus color.NRGBA
	Text        color.NRGBA
	TextMuted   color.NRGBA
	Primary     color.NRGBA
	Success     color.NRGBA
	Error       color.NRGBA
}

// Config defines the widget metrics.
type Config struct {
	CornerRadius unit.Dp
	CellWidth    unit.Dp
	CellHeight   unit.Dp
	CellGap      unit.Dp
	Padding      unit.Dp
	FontTitle    unit.Sp
	FontDigit    unit.Sp
	FontBody     unit.Sp
}

// Theme wraps the material theme with pinpad-specific styling.
type Theme struct {
	*material.Theme
	Palette Palette
	Config  Config
}

// NewTheme creates a new theme based on the current OS.
func NewTheme(mtheme *material.Theme) *Theme {
	t := &Theme{
		Theme: mtheme,
	}

	if runtime.GOOS == "darwin" {
		setupMacOSTheme(t)
	} else {
		setupDefaultTheme(t)
	}

	return t
}

func setupDefaultTheme(t *Theme) {
	// Dark palette in the Windows 11 direction.
	t.Palette = Palette{
		Background:  color.NRGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xFF},
		Cell:        color.NRGBA{R: 0x2C, G: 0x2C, B: 0x2C, A: 0xFF},
		CellFocused: color.NRGBA{R: 0x32, G: 0x32, B: 0x36, A: 0xFF},
		Border:      color.NRGBA{R: 0x40, G: 0x40, B: 0x40, A: 0xFF},
		BorderFocus: color.NRGBA{R: 0x00, G: 0x78, B: 0xD4, A: 0xFF},
		Text:        color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF},
		TextMuted:   color.NRGBA{R: 0xA0, G: 0xA0, B: 0xA0, A: 0xFF},
		Primary:     color.NRGBA{R: 0x00, G: 0x78, B: 0xD4, A: 0xFF},
		Success:     color.NRGBA{R: 0x6B, G: 0xBC, B: 0x0F, A: 0xFF},
		Error:       color.NRGBA{R: 0xE8, G: 0x11, B: 0x23, A: 0xFF},
	}

	t.Config = Config{
		CornerRadius: unit.Dp(4),
		CellWidth:    unit.Dp(44),
		CellHeight:   unit.Dp(56),
		CellGap:      unit.Dp(10),
		Padding:      unit.Dp(24),
		FontTitle:    unit.Sp(20),
		FontDigit:    unit.Sp(26),
		FontBody:     unit.Sp(14),
	}
}

func setupMacOSTheme(t *Theme) {
	t.Palette = Palette{
		Background:  color.NRGBA{R: 0x1E, G: 0x1E, B: 0x1E, A: 0xFF},
		Cell:        color.NRGBA{R: 0x26, G: 0x26, B: 0x26, A: 0xFF},
		CellFocused: color.NRGBA{R: 0x2E, G: 0x2E, B: 0x32, A: 0xFF},
		Border:      color.NRGBA{R: 0x3A, G: 0x3A, B: 0x3C, A: 0xFF},
		BorderFocus: color.NRGBA{R: 0x0A, G: 0x84, B: 0xFF, A: 0xFF},
		Text:        color.NRGBA{R: 0xF5, G: 0xF5, B: 0xF7, A: 0xFF},
		TextMuted:   color.NRGBA{R: 0x86, G: 0x86, B: 0x8B, A: 0xFF},
		Primary:     color.NRGBA{R: 0x0A, G: 0x84, B: 0xFF, A: 0xFF},
		Success:     color.NRGBA{R: 0x30, G: 0xD1, B: 0x58, A: 0xFF},
		Error:       color.NRGBA{R: 0xFF, G: 0x45, B: 0x3A, A: 0xFF},
	}

	t.Config = Config{
		CornerRadius: unit.Dp(10),
		CellWidth:    unit.Dp(44),
		CellHeight:   unit.Dp(56),
		CellGap:      unit.Dp(12),
		Padding:      unit.Dp(28),
		FontTitle:    unit.Sp(22),
		FontDigit:    unit.Sp(26),
		FontBody:     unit.Sp(13),
	}
}
