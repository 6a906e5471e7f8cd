package report

import (
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// maxCell bounds a column so one long signature does not push every other
// row off screen.
const maxCell = 48

// table is a list of rows printed with left-aligned, padded columns.
type table struct {
	rows [][]string
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) widths() []int {
	var w []int
	for _, row := range t.rows {
		for i, cell := range row {
			if i >= len(w) {
				w = append(w, 0)
			}
			w[i] = max(w[i], min(runewidth.StringWidth(cell), maxCell))
		}
	}
	return w
}

// write prints the table with indent in front of every row. paint, when
// non-nil, decorates a cell after padding.
func (t *table) write(out io.Writer, indent string, paint func(row, col int, cell string) string) error {
	w := t.widths()
	var sb strings.Builder
	for r, row := range t.rows {
		sb.Reset()
		sb.WriteString(indent)
		for c, cell := range row {
			cell = runewidth.Truncate(cell, maxCell, "…")
			if c < len(row)-1 {
				cell = runewidth.FillRight(cell, w[c])
			}
			if paint != nil {
				cell = paint(r, c, cell)
			}
			sb.WriteString(cell)
			if c < len(row)-1 {
				sb.WriteString("  ")
			}
		}
		line := strings.TrimRight(sb.String(), " ") + "\n"
		if _, err := io.WriteString(out, line); err != nil {
			return err
		}
	}
	return nil
}
