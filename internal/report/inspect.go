package report

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/tensorcrate/tensorcrate/internal/crate"
)

// CrateTable renders the record listing of a crate header as a table
// with per-record dtype, shape and size plus a payload total.
func CrateTable(h crate.Header) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Name", "DType", "Shape", "Bytes"})

	var total int64
	for i, r := range h.Records {
		t.AppendRow(table.Row{i + 1, r.Name, r.DType, shapeString(r.Shape), r.Size})
		total += r.Size
	}
	t.AppendFooter(table.Row{"", "", "", "total", total})
	return t.Render()
}

// CrateSummary renders the header fields above the record table.
func CrateSummary(path string, h crate.Header) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendRow(table.Row{"File", path})
	t.AppendRow(table.Row{"Format version", h.FormatVersion})
	t.AppendRow(table.Row{"Tool version", h.ToolVersion})
	t.AppendRow(table.Row{"Created", h.CreatedAt.Format("2006-01-02 15:04:05 MST")})
	t.AppendRow(table.Row{"Records", len(h.Records)})
	return t.Render()
}

func shapeString(shape []int) string {
	if len(shape) == 0 {
		return "scalar"
	}
	out := ""
	for i, d := range shape {
		if i > 0 {
			out += "x"
		}
		out += fmt.Sprintf("%d", d)
	}
	return out
}
