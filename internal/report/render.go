package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
)

// maxCellWidth bounds values and errors in the table; full text is in the logs.
const maxCellWidth = 60

// WriteTable renders entries as a summary table.
func WriteTable(w io.Writer, entries []Entry) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader([]string{"Wait", "Outcome", "Attempts", "Elapsed", "Value", "Error"})

	for _, e := range entries {
		errMsg := ""
		if e.Error != nil {
			errMsg = *e.Error
		}
		table.Append([]string{
			e.Name,
			e.Outcome,
			strconv.Itoa(e.Attempts),
			(time.Duration(e.ElapsedMs) * time.Millisecond).String(),
			truncate(e.Value),
			truncate(errMsg),
		})
	}
	table.Render()
}

// WriteJSON renders entries as an indented JSON array.
func WriteJSON(w io.Writer, entries []Entry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxCellWidth {
		return s
	}
	return string(r[:maxCellWidth-3]) + "..."
}
