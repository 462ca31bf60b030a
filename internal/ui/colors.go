package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/syncctl/internal/notify"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title  lipgloss.Style
	ok     lipgloss.Style
	err    lipgloss.Style
	warn   lipgloss.Style
	help   lipgloss.Style
	banner lipgloss.Style
	badge  lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title:  NewBold(t).MarginBottom(1),
		ok:     NewBold(s),
		err:    NewBold(e),
		warn:   NewStyle(w),
		help:   NewEm(h),
		banner: NewBold(e).Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color(e)).Padding(0, 1),
		badge:  lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color(t)),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

// severity picks the style a notice is drawn with. Closing notices are dimmed.
func (p *Palette) severity(n notify.Notice) lipgloss.Style {
	if n.Closing {
		return p.help
	}
	switch n.Severity {
	case notify.Success:
		return p.ok
	case notify.Warning:
		return p.warn
	case notify.Error:
		return p.err
	default:
		return lipgloss.NewStyle()
	}
}
