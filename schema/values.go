package schema

import "fmt"

// cell holds one slot's parsed value as a tagged variant rather than an
// interface{}, avoiding an allocation per scalar slot on the hot path.
type cell struct {
	exists bool
	i      int64
	f      float64
	s      string
	li     []int64
	lf     []float64
	ls     []string
}

// Values is a dense, schema-indexed store of parsed argument values.
// It is produced by Schema.Parse and is immutable afterward.
type Values struct {
	schema *Schema
	cells  []cell
}

func newValues(s *Schema) *Values {
	return &Values{schema: s, cells: make([]cell, len(s.slots))}
}

func (v *Values) checkKind(idx int, want Kind) Desc {
	d := v.schema.Slot(idx) // panics on out-of-range idx
	if d.Kind != want {
		panic(fmt.Sprintf("schema %q: slot %q is %s, not %s", v.schema.Path, d.Name, d.Kind, want))
	}
	return d
}

func (v *Values) requireExists(idx int) {
	if !v.cells[idx].exists {
		d := v.schema.slots[idx]
		panic(fmt.Sprintf("schema %q: slot %q has no value (required slot left unset)", v.schema.Path, d.Name))
	}
}

// Exists reports whether idx was supplied (or defaulted). Valid for any
// kind; never panics on a missing value, only on an out-of-range idx.
func (v *Values) Exists(idx int) bool {
	v.schema.Slot(idx)
	return v.cells[idx].exists
}

// Flag returns 1 if the flag slot was present, 0 otherwise.
func (v *Values) Flag(idx int) int {
	v.checkKind(idx, KindFlag)
	if v.cells[idx].exists {
		return 1
	}
	return 0
}

// Int returns an int slot's value. Panics if idx is the wrong kind or
// unset (programmer error per spec.md section 4.2).
func (v *Values) Int(idx int) int64 {
	v.checkKind(idx, KindInt)
	v.requireExists(idx)
	return v.cells[idx].i
}

// Number returns a number slot's value.
func (v *Values) Number(idx int) float64 {
	v.checkKind(idx, KindNumber)
	v.requireExists(idx)
	return v.cells[idx].f
}

// String returns a string slot's value.
func (v *Values) String(idx int) string {
	v.checkKind(idx, KindString)
	v.requireExists(idx)
	return v.cells[idx].s
}

// ListLen returns the number of elements in a list slot (0 if unset).
func (v *Values) ListLen(idx int) int {
	d := v.schema.Slot(idx)
	if !d.Kind.isList() {
		panic(fmt.Sprintf("schema %q: slot %q is %s, not a list kind", v.schema.Path, d.Name, d.Kind))
	}
	c := &v.cells[idx]
	switch d.Kind {
	case KindListInt:
		return len(c.li)
	case KindListNumber:
		return len(c.lf)
	default:
		return len(c.ls)
	}
}

// ListInt returns element i of a list-int slot.
func (v *Values) ListInt(idx, i int) int64 {
	v.checkKind(idx, KindListInt)
	return v.cells[idx].li[i]
}

// ListNumber returns element i of a list-number slot.
func (v *Values) ListNumber(idx, i int) float64 {
	v.checkKind(idx, KindListNumber)
	return v.cells[idx].lf[i]
}

// ListString returns element i of a list-string slot.
func (v *Values) ListString(idx, i int) string {
	v.checkKind(idx, KindListString)
	return v.cells[idx].ls[i]
}
