package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Table accumulates rows and renders them in one of two shapes: a rounded
// box table for humans, or kubectl-style plain columns that survive
// copy/paste and pipe cleanly into grep and awk.
type Table struct {
	headers []string
	rows    [][]string
}

// NewTable creates a table with the given column headers.
func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

// AddRow appends one row. Missing cells render empty; extra cells are
// dropped so a malformed row cannot skew the whole table.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.headers))
	for i := range t.headers {
		if i < len(cells) {
			row[i] = cells[i]
		}
	}
	t.rows = append(t.rows, row)
}

// Render writes the rounded box form.
func (t *Table) Render(w io.Writer) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(t.headers))
	for i, h := range t.headers {
		header[i] = strings.ToUpper(h)
	}
	tw.AppendHeader(header)

	for _, row := range t.rows {
		cells := make(table.Row, len(row))
		for i, c := range row {
			cells[i] = c
		}
		tw.AppendRow(cells)
	}
	tw.Render()
}

// RenderPlain writes the kubectl-style form: uppercase headers, columns
// padded to their widest cell, no box-drawing characters.
func (t *Table) RenderPlain(w io.Writer, noHeaders bool) {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	headers := make([]string, len(t.headers))
	for i, h := range t.headers {
		headers[i] = strings.ToUpper(h)
		widths[i] = len(headers[i])
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	if !noHeaders {
		printPlainRow(w, headers, widths)
	}
	for _, row := range t.rows {
		printPlainRow(w, row, widths)
	}
}

// minColumnPadding is the gap between plain-table columns.
const minColumnPadding = 3

func printPlainRow(w io.Writer, row []string, widths []int) {
	var sb strings.Builder
	for i, cell := range row {
		if i == len(row)-1 {
			sb.WriteString(cell)
			continue
		}
		sb.WriteString(fmt.Sprintf("%-*s", widths[i]+minColumnPadding, cell))
	}
	fmt.Fprintln(w, strings.TrimRight(sb.String(), " "))
}
