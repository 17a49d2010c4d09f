package occupancy

import (
	"errors"
	"fmt"
	"sort"
)

var ErrCellConflict = errors.New("occupancy: cell already occupied")

// Cell is one stackable slot: ring, layer, sector.
type Cell struct {
	R int `json:"r"`
	H int `json:"h"`
	A int `json:"a"`
}

func (c Cell) Below() Cell { return Cell{R: c.R, H: c.H - 1, A: c.A} }

func (c Cell) Column() Column { return Column{R: c.R, A: c.A} }

func (c Cell) String() string { return fmt.Sprintf("(%d,%d,%d)", c.R, c.H, c.A) }

// Column identifies a vertical stack of cells.
type Column struct {
	R int `json:"r"`
	A int `json:"a"`
}

// Table is the authoritative record of filled cells.
// Entries are only added; a session never clears a cell.
type Table struct {
	cells map[Cell]string
	tops  map[Column]int
}

func NewTable() *Table {
	return &Table{
		cells: map[Cell]string{},
		tops:  map[Column]int{},
	}
}

func (t *Table) Len() int { return len(t.cells) }

func (t *Table) Occupied(c Cell) bool {
	_, ok := t.cells[c]
	return ok
}

// Occupant returns the handle stored at c.
func (t *Table) Occupant(c Cell) (string, bool) {
	id, ok := t.cells[c]
	return id, ok
}

// Insert commits id at c. It never overwrites an existing occupant.
func (t *Table) Insert(c Cell, id string) error {
	if prev, ok := t.cells[c]; ok {
		return fmt.Errorf("%w: %s held by %s", ErrCellConflict, c, prev)
	}
	t.cells[c] = id
	col := c.Column()
	if top, ok := t.tops[col]; !ok || c.H+1 > top {
		t.tops[col] = c.H + 1
	}
	return nil
}

// ColumnHeight is one past the highest occupied layer in col (0 when empty).
func (t *Table) ColumnHeight(col Column) int {
	return t.tops[col]
}

// Columns returns the heights of every non-empty column, sorted by (R, A).
func (t *Table) Columns() []ColumnHeight {
	out := make([]ColumnHeight, 0, len(t.tops))
	for col, h := range t.tops {
		out = append(out, ColumnHeight{Column: col, Height: h})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].R != out[j].R {
			return out[i].R < out[j].R
		}
		return out[i].A < out[j].A
	})
	return out
}

type ColumnHeight struct {
	Column
	Height int `json:"height"`
}

// Entry is a (cell, occupant) pair.
type Entry struct {
	Cell Cell   `json:"cell"`
	ID   string `json:"id"`
}

// Entries returns all occupied cells in (R, A, H) order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.cells))
	for c, id := range t.cells {
		out = append(out, Entry{Cell: c, ID: id})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Cell, out[j].Cell
		if a.R != b.R {
			return a.R < b.R
		}
		if a.A != b.A {
			return a.A < b.A
		}
		return a.H < b.H
	})
	return out
}
