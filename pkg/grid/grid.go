// Package grid provides pure addressing helpers for rectangular storage
// grids. Rows carry alphabetic labels (A, B, ... Z, AA, AB, ...) and columns
// carry 1-based integer labels; both are presentational. Row-major order (row
// ascending, then column ascending) is the canonical traversal order for all
// sequential-fill logic.
package grid

import (
	"sort"
	"strconv"
)

// Coord identifies one cell position within a unit's grid. Row and Col are
// zero-based.
type Coord struct {
	Row int
	Col int
}

// RowLabel returns the alphabetic label for a zero-based row index: A through
// Z, then AA, AB and so on. Negative rows yield the empty string.
func RowLabel(row int) string {
	if row < 0 {
		return ""
	}
	label := make([]byte, 0, 2)
	for {
		label = append(label, byte('A'+row%26))
		row = row/26 - 1
		if row < 0 {
			break
		}
	}
	for i, j := 0, len(label)-1; i < j; i, j = i+1, j-1 {
		label[i], label[j] = label[j], label[i]
	}
	return string(label)
}

// ColumnLabel returns the 1-based display label for a zero-based column
// index. Negative columns yield the empty string.
func ColumnLabel(col int) string {
	if col < 0 {
		return ""
	}
	return strconv.Itoa(col + 1)
}

// DisplayName joins the row and column labels into the conventional cell name,
// e.g. Coord{Row: 1, Col: 6} renders as "B7". Coordinates with a negative
// component yield the empty string.
func DisplayName(c Coord) string {
	row := RowLabel(c.Row)
	col := ColumnLabel(c.Col)
	if row == "" || col == "" {
		return ""
	}
	return row + col
}

// Compare orders coordinates row-major, returning -1, 0 or 1.
func Compare(a, b Coord) int {
	switch {
	case a.Row < b.Row:
		return -1
	case a.Row > b.Row:
		return 1
	case a.Col < b.Col:
		return -1
	case a.Col > b.Col:
		return 1
	default:
		return 0
	}
}

// Less reports whether a precedes b in row-major order.
func Less(a, b Coord) bool {
	return Compare(a, b) < 0
}

// Index returns the row-major ordinal of c within a grid of cols columns.
// cols must be at least 1.
func Index(c Coord, cols int) int {
	return c.Row*cols + c.Col
}

// FromIndex converts a row-major ordinal back into a coordinate within a grid
// of cols columns. cols must be at least 1.
func FromIndex(index, cols int) Coord {
	return Coord{Row: index / cols, Col: index % cols}
}

// SortCoords sorts coordinates in place into row-major order.
func SortCoords(coords []Coord) {
	sort.Slice(coords, func(i, j int) bool {
		return Less(coords[i], coords[j])
	})
}
