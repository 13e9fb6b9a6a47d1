package core

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	FieldPosition = "position"
	FieldVelocity = "velocity"
	FieldColor    = "color"
)

// Field is one named run of float32 components inside a particle record.
type Field struct {
	Name       string
	Components int
}

// FieldLayout is the ordered particle schema shared by the host encoder and the
// generated device programs. Offsets are counted in floats.
type FieldLayout struct {
	fields  []Field
	offsets []int
	floats  int
}

var (
	// RichLayout: position(2) velocity(2) color(3) -> 28 bytes.
	RichLayout = MustLayout(
		Field{Name: FieldPosition, Components: 2},
		Field{Name: FieldVelocity, Components: 2},
		Field{Name: FieldColor, Components: 3},
	)
	// MinimalLayout: position(2) velocity(2) -> 16 bytes.
	MinimalLayout = MustLayout(
		Field{Name: FieldPosition, Components: 2},
		Field{Name: FieldVelocity, Components: 2},
	)
)

var requiredComponents = map[string]int{
	FieldPosition: 2,
	FieldVelocity: 2,
	FieldColor:    3,
}

func NewFieldLayout(fields ...Field) (FieldLayout, error) {
	l := FieldLayout{
		fields:  make([]Field, 0, len(fields)),
		offsets: make([]int, 0, len(fields)),
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return FieldLayout{}, configErrorf("layout", "field at offset %d has no name", l.floats)
		}
		if f.Components <= 0 {
			return FieldLayout{}, configErrorf("layout", "field %q has %d components", f.Name, f.Components)
		}
		if seen[f.Name] {
			return FieldLayout{}, configErrorf("layout", "duplicate field %q", f.Name)
		}
		if want, ok := requiredComponents[f.Name]; ok && want != f.Components {
			return FieldLayout{}, configErrorf("layout", "field %q must have %d components, got %d", f.Name, want, f.Components)
		}
		seen[f.Name] = true
		l.fields = append(l.fields, f)
		l.offsets = append(l.offsets, l.floats)
		l.floats += f.Components
	}
	for _, name := range []string{FieldPosition, FieldVelocity} {
		if !seen[name] {
			return FieldLayout{}, configErrorf("layout", "missing required field %q", name)
		}
	}
	return l, nil
}

func MustLayout(fields ...Field) FieldLayout {
	l, err := NewFieldLayout(fields...)
	if err != nil {
		panic(err)
	}
	return l
}

// LayoutByName resolves the layout names accepted in configuration files.
func LayoutByName(name string) (FieldLayout, error) {
	switch name {
	case "", "rich":
		return RichLayout, nil
	case "minimal":
		return MinimalLayout, nil
	}
	return FieldLayout{}, configErrorf("layout", "unknown layout %q", name)
}

func (l FieldLayout) Fields() []Field {
	out := make([]Field, len(l.fields))
	copy(out, l.fields)
	return out
}

// Floats is the number of float32 values per record.
func (l FieldLayout) Floats() int { return l.floats }

// Stride is the record size in bytes.
func (l FieldLayout) Stride() int { return l.floats * 4 }

func (l FieldLayout) Valid() bool { return l.floats > 0 }

// Offset returns the float offset of the named field.
func (l FieldLayout) Offset(name string) (int, bool) {
	for i, f := range l.fields {
		if f.Name == name {
			return l.offsets[i], true
		}
	}
	return 0, false
}

func (l FieldLayout) Has(name string) bool {
	_, ok := l.Offset(name)
	return ok
}

func (l FieldLayout) mustOffset(name string) int {
	off, ok := l.Offset(name)
	if !ok {
		panic(fmt.Sprintf("layout has no field %q", name))
	}
	return off
}

// Put stores p into the record rec (len >= Floats()). Fields the layout does not
// carry are dropped; extra layout fields are left as they are.
func (l FieldLayout) Put(rec []float32, p Particle) {
	pos := l.mustOffset(FieldPosition)
	rec[pos], rec[pos+1] = p.Position[0], p.Position[1]
	vel := l.mustOffset(FieldVelocity)
	rec[vel], rec[vel+1] = p.Velocity[0], p.Velocity[1]
	if col, ok := l.Offset(FieldColor); ok {
		rec[col], rec[col+1], rec[col+2] = p.Color[0], p.Color[1], p.Color[2]
	}
}

// Get reads the known fields of rec.
func (l FieldLayout) Get(rec []float32) Particle {
	var p Particle
	pos := l.mustOffset(FieldPosition)
	p.Position[0], p.Position[1] = rec[pos], rec[pos+1]
	vel := l.mustOffset(FieldVelocity)
	p.Velocity[0], p.Velocity[1] = rec[vel], rec[vel+1]
	if col, ok := l.Offset(FieldColor); ok {
		p.Color[0], p.Color[1], p.Color[2] = rec[col], rec[col+1], rec[col+2]
	}
	return p
}

// Encode packs particles into little-endian float32 bytes, ready for upload.
func (l FieldLayout) Encode(particles []Particle) []byte {
	rec := make([]float32, l.floats)
	buf := make([]byte, len(particles)*l.Stride())
	for i, p := range particles {
		clear(rec)
		l.Put(rec, p)
		PutFloats(buf[i*l.Stride():], rec)
	}
	return buf
}

// Decode unpacks whole records from data.
func (l FieldLayout) Decode(data []byte) []Particle {
	n := len(data) / l.Stride()
	rec := make([]float32, l.floats)
	out := make([]Particle, n)
	for i := range out {
		ReadFloats(rec, data[i*l.Stride():])
		out[i] = l.Get(rec)
	}
	return out
}

func PutFloats(dst []byte, src []float32) {
	for i, v := range src {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
}

func ReadFloats(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
}
