package console

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// RGB is one palette entry
type RGB [3]uint8

// Palette is a color gradient
type Palette struct {
	Name   string
	Colors []RGB
}

// Plasma runs deep purple to bright yellow
var Plasma = &Palette{
	Name: "plasma",
	Colors: []RGB{
		{13, 8, 135},
		{84, 2, 163},
		{139, 10, 165},
		{185, 50, 137},
		{219, 92, 104},
		{244, 136, 73},
		{254, 188, 43},
		{240, 249, 33},
	},
}

// Color roles as palette positions (0-1)
const (
	RoleMuted   = 0.2
	RoleAccent  = 0.45
	RoleWarning = 0.75
	RoleSuccess = 1.0
)

// Lookup returns the interpolated color for a normalized value 0-1
func (p *Palette) Lookup(norm float64) RGB {
	if norm <= 0 {
		return p.Colors[0]
	}
	if norm >= 1 {
		return p.Colors[len(p.Colors)-1]
	}

	pos := norm * float64(len(p.Colors)-1)
	i := int(pos)
	frac := pos - float64(i)

	c0 := p.Colors[i]
	c1 := p.Colors[i+1]

	return RGB{
		lerp(c0[0], c1[0], frac),
		lerp(c0[1], c1[1], frac),
		lerp(c0[2], c1[2], frac),
	}
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a)*(1-t) + float64(b)*t)
}

// Color returns the lipgloss color at norm
func (p *Palette) Color(norm float64) lipgloss.Color {
	c := p.Lookup(norm)
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}

// VelocityStyle colors trace lines by how hard the key was struck
func (p *Palette) VelocityStyle(vel uint8) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(p.Color(float64(vel) / 127))
}
