package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// truncate shortens s to at most max runes, marking the cut
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

// wrapText wraps text to a specified width, preserving paragraph breaks
func wrapText(text string, width int) []string {
	var result []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			result = append(result, "")
			continue
		}

		line := words[0]
		for _, word := range words[1:] {
			if len(line)+1+len(word) <= width {
				line += " " + word
				continue
			}
			result = append(result, line)
			line = word
		}
		result = append(result, line)
	}
	return result
}

// renderFrame draws up to limit rows of a frame as a bordered table
func renderFrame(f *Frame, limit int, theme *Theme) string {
	if f == nil {
		return ""
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.Color("prompt"))).
		Headers(f.Columns...).
		Rows(f.StringRows(limit)...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	var sb strings.Builder
	sb.WriteString(t.Render())
	sb.WriteString("\n")
	if limit > 0 && f.Len() > limit {
		sb.WriteString(theme.Dim(fmt.Sprintf("%d of %d rows shown", limit, f.Len())))
		sb.WriteString("\n")
	}
	return sb.String()
}
