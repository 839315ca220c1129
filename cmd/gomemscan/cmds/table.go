package cmds

import (
	"fmt"
	"io"
	"strings"

	"github.com/Moonlight-Companies/gologger/coloransi"
)

// column defines a column's properties
type column struct {
	Header     string
	BlankValue string // shown for empty cells, "-" when unset
	Color      coloransi.ColorCode
	MinWidth   int
}

// table is a left aligned, space separated listing
type table struct {
	columns []column
	rows    [][]string
	widths  []int
	color   bool
}

func newTable(color bool, cols ...column) *table {
	t := &table{
		columns: cols,
		widths:  make([]int, len(cols)),
		color:   color,
	}
	for i, col := range cols {
		t.widths[i] = max(col.MinWidth, len(col.Header))
		if col.BlankValue == "" {
			t.columns[i].BlankValue = "-"
		}
	}
	return t
}

// addRow adds a row. Missing trailing cells are blank.
func (t *table) addRow(data ...string) {
	row := make([]string, len(t.columns))
	for i := range row {
		if i < len(data) && data[i] != "" {
			row[i] = data[i]
		} else {
			row[i] = t.columns[i].BlankValue
		}
		t.widths[i] = max(t.widths[i], len(row[i]))
	}
	t.rows = append(t.rows, row)
}

func (t *table) render(w io.Writer) error {
	headers := make([]string, len(t.columns))
	sep := make([]string, len(t.columns))
	for i, col := range t.columns {
		headers[i] = pad(col.Header, t.widths[i])
		sep[i] = strings.Repeat("-", t.widths[i])
	}
	if _, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(headers, " "), " ")); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, strings.Join(sep, " ")); err != nil {
		return err
	}

	for _, row := range t.rows {
		formatted := make([]string, len(row))
		for i, val := range row {
			// Padding happens before coloring so escapes do not count towards the width.
			cell := val
			if i < len(row)-1 {
				cell = pad(val, t.widths[i])
			}
			if t.color && t.columns[i].Color != 0 {
				cell = coloransi.Foreground(t.columns[i].Color, cell)
			}
			formatted[i] = cell
		}
		if _, err := fmt.Fprintln(w, strings.Join(formatted, " ")); err != nil {
			return err
		}
	}
	return nil
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
