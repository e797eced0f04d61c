package cmd

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	tableDimStyle    = tableCellStyle.Foreground(lipgloss.Color("8"))
)

// renderTable draws rows under headers. Rows for which dim returns true are
// greyed out.
func renderTable(headers []string, rows [][]string, dim func(row int) bool) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return tableHeaderStyle
			case dim != nil && dim(row):
				return tableDimStyle
			default:
				return tableCellStyle
			}
		})
	return t.Render()
}
