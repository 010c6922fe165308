package grid

import "testing"

func TestRowLabel(t *testing.T) {
	cases := []struct {
		row  int
		want string
	}{
		{0, "A"},
		{1, "B"},
		{25, "Z"},
		{26, "AA"},
		{27, "AB"},
		{51, "AZ"},
		{52, "BA"},
		{701, "ZZ"},
		{702, "AAA"},
		{-1, ""},
	}
	for _, tc := range cases {
		if got := RowLabel(tc.row); got != tc.want {
			t.Errorf("RowLabel(%d): got %q, want %q", tc.row, got, tc.want)
		}
	}
}

func TestColumnLabel(t *testing.T) {
	if got := ColumnLabel(0); got != "1" {
		t.Fatalf("ColumnLabel(0): got %q, want %q", got, "1")
	}
	if got := ColumnLabel(11); got != "12" {
		t.Fatalf("ColumnLabel(11): got %q, want %q", got, "12")
	}
	if got := ColumnLabel(-3); got != "" {
		t.Fatalf("ColumnLabel(-3): got %q, want empty", got)
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName(Coord{Row: 1, Col: 6}); got != "B7" {
		t.Fatalf("DisplayName: got %q, want %q", got, "B7")
	}
	if got := DisplayName(Coord{Row: -1, Col: 0}); got != "" {
		t.Fatalf("DisplayName with negative row: got %q, want empty", got)
	}
}

func TestRowMajorOrdering(t *testing.T) {
	// Row ascending wins over column; within a row, column ascending.
	if !Less(Coord{Row: 0, Col: 9}, Coord{Row: 1, Col: 0}) {
		t.Fatalf("expected end of first row to precede start of second")
	}
	if !Less(Coord{Row: 2, Col: 3}, Coord{Row: 2, Col: 4}) {
		t.Fatalf("expected column order within a row")
	}
	if Compare(Coord{Row: 5, Col: 5}, Coord{Row: 5, Col: 5}) != 0 {
		t.Fatalf("expected equal coordinates to compare as 0")
	}
}

func TestIndexRoundTrip(t *testing.T) {
	const cols = 9
	for row := 0; row < 4; row++ {
		for col := 0; col < cols; col++ {
			c := Coord{Row: row, Col: col}
			idx := Index(c, cols)
			if got := FromIndex(idx, cols); got != c {
				t.Fatalf("round trip %v: index %d decoded to %v", c, idx, got)
			}
		}
	}
	if Index(Coord{Row: 1, Col: 0}, cols) != cols {
		t.Fatalf("expected second row to start at index %d", cols)
	}
}

func TestSortCoords(t *testing.T) {
	coords := []Coord{{Row: 1, Col: 0}, {Row: 0, Col: 2}, {Row: 0, Col: 1}}
	SortCoords(coords)
	want := []Coord{{Row: 0, Col: 1}, {Row: 0, Col: 2}, {Row: 1, Col: 0}}
	for i := range want {
		if coords[i] != want[i] {
			t.Fatalf("position %d: got %v, want %v", i, coords[i], want[i])
		}
	}
}
