// Package table contains helpers for rendering tables.
package table

import (
	"os"

	"github.com/olekukonko/tablewriter"
)

// New creates a new tablewriter.Table instance with suitable defaults.
func New() *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)

	// Create a borderless, minimal table with space padding.
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetRowSeparator("")
	table.SetColumnSeparator("")
	table.SetCenterSeparator("")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetTablePadding("   ")
	table.SetNoWhiteSpace(true)

	return table
}
