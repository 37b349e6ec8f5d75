// Package curve implements the 128-point lookup tables used to map a
// 0..127 controller value to an effective modulation factor.
package curve

import (
	"fmt"
	"math"
	"sync"
)

// NumSlots is the resolution of every curve table: one entry per
// possible 7-bit controller value.
const NumSlots = 128

// Point is one sparse control point supplied by a region.
type Point struct {
	Pos   int // 0..127
	Value float64
}

// Curve is a dense, immutable 128-entry lookup table.
type Curve struct {
	table [NumSlots]float64
}

// Get returns the table value at pos, clamped to [0, NumSlots-1].
func (c *Curve) Get(pos int) float64 {
	if pos < 0 {
		pos = 0
	} else if pos >= NumSlots {
		pos = NumSlots - 1
	}
	return c.table[pos]
}

func buildFromPoints(points []Point) *Curve {
	// Default endpoints per spec.md 4.9: (0,0) and (127,1) unless
	// overridden by an explicit point at that position.
	pts := make([]Point, 0, len(points)+2)
	haveLo, haveHi := false, false
	for _, p := range points {
		if p.Pos == 0 {
			haveLo = true
		}
		if p.Pos == NumSlots-1 {
			haveHi = true
		}
	}
	if !haveLo {
		pts = append(pts, Point{0, 0})
	}
	if !haveHi {
		pts = append(pts, Point{NumSlots - 1, 1})
	}
	pts = append(pts, points...)

	// Sort by position (small N, insertion sort avoids importing sort
	// for what's typically a handful of points).
	for i := 1; i < len(pts); i++ {
		for j := i; j > 0 && pts[j-1].Pos > pts[j].Pos; j-- {
			pts[j-1], pts[j] = pts[j], pts[j-1]
		}
	}

	c := &Curve{}
	for i := 0; i < len(pts)-1; i++ {
		a, b := pts[i], pts[i+1]
		span := b.Pos - a.Pos
		if span <= 0 {
			c.table[a.Pos] = a.Value
			continue
		}
		for x := a.Pos; x <= b.Pos; x++ {
			t := float64(x-a.Pos) / float64(span)
			c.table[x] = a.Value + t*(b.Value-a.Value)
		}
	}
	return c
}

func key(points []Point) string {
	s := ""
	for _, p := range points {
		s += fmt.Sprintf("%d:%.9g;", p.Pos, p.Value)
	}
	return s
}

// Table interns curves by the value-equality of their sparse point
// sets: two regions declaring identical points share one *Curve.
type Table struct {
	mu      sync.Mutex
	interned map[string]*Curve
	builtin  [7]*Curve
}

// Builtin curve indices, per spec.md 4.9.
const (
	BuiltinLinear01   = 0 // linear 0 -> 1
	BuiltinLinearNP1  = 1 // linear -1 -> 1
	BuiltinLinear10   = 2 // linear 1 -> 0
	BuiltinLinear1NN1 = 3 // linear 1 -> -1
	BuiltinQuadratic  = 4 // v^2 / 127^2
	BuiltinXfinPower  = 5 // sqrt(v/127)
	BuiltinXfoutPower = 6 // sqrt((127-v)/127)
)

// NewTable constructs a curve table with the seven built-in curves
// pre-interned.
func NewTable() *Table {
	t := &Table{interned: make(map[string]*Curve)}
	t.builtin[BuiltinLinear01] = buildFromPoints([]Point{{0, 0}, {127, 1}})
	t.builtin[BuiltinLinearNP1] = buildFromPoints([]Point{{0, -1}, {127, 1}})
	t.builtin[BuiltinLinear10] = buildFromPoints([]Point{{0, 1}, {127, 0}})
	t.builtin[BuiltinLinear1NN1] = buildFromPoints([]Point{{0, 1}, {127, -1}})

	quad := &Curve{}
	for v := 0; v < NumSlots; v++ {
		quad.table[v] = float64(v) * float64(v) / (127.0 * 127.0)
	}
	t.builtin[BuiltinQuadratic] = quad

	xfin := &Curve{}
	xfout := &Curve{}
	for v := 0; v < NumSlots; v++ {
		xfin.table[v] = math.Sqrt(float64(v) / 127.0)
		xfout.table[v] = math.Sqrt(float64(127-v) / 127.0)
	}
	t.builtin[BuiltinXfinPower] = xfin
	t.builtin[BuiltinXfoutPower] = xfout

	return t
}

// Builtin returns one of the seven pre-interned default curves.
func (t *Table) Builtin(index int) *Curve {
	if index < 0 || index >= len(t.builtin) {
		return t.builtin[BuiltinLinear01]
	}
	return t.builtin[index]
}

// Intern returns the shared *Curve for the given sparse point set,
// building and caching a new one on first use.
func (t *Table) Intern(points []Point) *Curve {
	if len(points) == 0 {
		return t.builtin[BuiltinLinear01]
	}
	k := key(points)

	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.interned[k]; ok {
		return c
	}
	c := buildFromPoints(points)
	t.interned[k] = c
	return c
}
