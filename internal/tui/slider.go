package tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lotas/hidenobids/internal/types"
)

// Slider picks the maximum bid count, 0 through NoBidLimit ("All").
type Slider struct {
	Value int
	Width int
}

func NewSlider(current int) Slider {
	if !types.ValidMaxBids(current) {
		current = types.NoBidLimit
	}
	return Slider{Value: current}
}

func (s *Slider) MoveLeft() bool {
	if s.Value > 0 {
		s.Value--
		return true
	}
	return false
}

func (s *Slider) MoveRight() bool {
	if s.Value < types.NoBidLimit {
		s.Value++
		return true
	}
	return false
}

// Label is the threshold shown next to the track.
func (s Slider) Label() string {
	if s.Value >= types.NoBidLimit {
		return "All"
	}
	return strconv.Itoa(s.Value)
}

func (s Slider) View() string {
	knobStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	trackStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	labelStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	var b strings.Builder
	b.WriteString(dimStyle.Render("0 "))
	for i := 0; i <= types.NoBidLimit; i++ {
		switch {
		case i == s.Value:
			b.WriteString(knobStyle.Render("●"))
		case i < s.Value:
			b.WriteString(trackStyle.Render("━━"))
		default:
			b.WriteString(dimStyle.Render("──"))
		}
	}
	b.WriteString(dimStyle.Render(" All"))
	b.WriteString(labelStyle.Render("Max bids: " + s.Label()))
	return b.String()
}
