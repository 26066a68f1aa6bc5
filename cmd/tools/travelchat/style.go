package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/travel-assistant/backend/internal/analysis/directive"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/render"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/render/chart"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	boxStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

// renderMarkdown falls back to the raw text when glamour cannot render.
func renderMarkdown(content string) string {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	if err != nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return out
}

// printAnswer writes the cleaned answer, then a box per chart and one for the map markers.
func printAnswer(w io.Writer, res directive.Result, routed render.Routed, plain bool) {
	if plain {
		fmt.Fprintln(w, res.CleanedText)
	} else {
		fmt.Fprint(w, renderMarkdown(res.CleanedText))
	}

	for _, derr := range res.Errors {
		fmt.Fprintln(w, warningStyle.Render("skipped directive: "+derr.Error()))
	}
	for _, p := range routed[render.TargetChart] {
		if c, ok := p.(render.Chart); ok {
			fmt.Fprintln(w, boxStyle.Render(chartSummary(c)))
		}
	}
	if markers := markersOf(routed); len(markers) > 0 {
		fmt.Fprintln(w, boxStyle.Render(mapSummary(markers)))
	}
}

// printPartial writes a stopped reply exactly as received.
func printPartial(w io.Writer, text string) {
	fmt.Fprintln(w, warningStyle.Render("stopped, partial reply:"))
	fmt.Fprintln(w, text)
	if directive.Default.Contains(text) || directive.Legacy.Contains(text) {
		fmt.Fprintln(w, dimStyle.Render("directives are only rendered for finished replies"))
	}
}

func markersOf(routed render.Routed) []render.Marker {
	var out []render.Marker
	for _, p := range routed[render.TargetMap] {
		if m, ok := p.(render.Marker); ok {
			out = append(out, m)
		}
	}
	return out
}

func chartSummary(c render.Chart) string {
	var b strings.Builder
	kind := "bar chart"
	if c.Kind == directive.LineChart {
		kind = "line chart"
	}
	b.WriteString(titleStyle.Render(kind))
	for _, s := range c.YAxis {
		b.WriteString("\n" + s.Label + ":")
		for i, v := range s.Value {
			label := ""
			if i < len(c.XAxis) {
				label = c.XAxis[i] + "="
			}
			b.WriteString(" " + label + chart.FormatAxisValue(v))
		}
	}
	return b.String()
}

func mapSummary(markers []render.Marker) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("map"))
	for _, m := range markers {
		b.WriteString(fmt.Sprintf("\n%s %s", m.Name, dimStyle.Render(fmt.Sprintf("(%.4f, %.4f)", m.Lat, m.Long))))
	}
	return b.String()
}
