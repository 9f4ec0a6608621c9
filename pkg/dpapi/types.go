// Package dpapi holds the caller-facing data model of the Data Platform
// client: ingestion Frames, query Requests, and the scalar type system
// both pipelines move values through.
package dpapi

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

// Type enumerates the scalar types a column or Value can carry.
type Type int

const (
	TypeUnspecified Type = iota
	TypeBool
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeFloat32
	TypeFloat64
	TypeString
	TypeTimestamp
	TypeByteArray
	TypeArray
	TypeStructure
	TypeImage
)

func (t Type) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt8:
		return "int8"
	case TypeInt16:
		return "int16"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeUint8:
		return "uint8"
	case TypeUint16:
		return "uint16"
	case TypeUint32:
		return "uint32"
	case TypeUint64:
		return "uint64"
	case TypeFloat32:
		return "float32"
	case TypeFloat64:
		return "float64"
	case TypeString:
		return "string"
	case TypeTimestamp:
		return "timestamp"
	case TypeByteArray:
		return "byte-array"
	case TypeArray:
		return "array"
	case TypeStructure:
		return "structure"
	case TypeImage:
		return "image"
	default:
		return "unspecified"
	}
}

// Timebase is satisfied by UniformClock and TimestampList, the two
// concrete timebase shapes a Frame or a Correlated Block may carry.
type Timebase interface {
	// Count is the number of samples the timebase describes.
	Count() int
	// Start is the instant of the first sample.
	Start() time.Time
	// Span is the wall-clock duration of the timebase: Period×Count for a
	// UniformClock (end-exclusive), last minus first instant for a
	// TimestampList.
	Span() time.Duration
	// Fingerprint is a structural hash used to group Correlated Blocks by
	// timebase equality (spec.md C9).
	Fingerprint() [32]byte
	// Slice returns the sub-timebase covering samples [from, to).
	Slice(from, to int) Timebase
}

// UniformClock is a regularly sampled timebase: Count samples spaced Period
// apart, beginning at StartInstant.
type UniformClock struct {
	StartInstant time.Time
	SampleCount  int
	Period       time.Duration
}

func (c UniformClock) Count() int          { return c.SampleCount }
func (c UniformClock) Start() time.Time    { return c.StartInstant }
func (c UniformClock) Span() time.Duration { return c.Period * time.Duration(c.SampleCount) }

func (c UniformClock) Fingerprint() [32]byte {
	var buf [24]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(c.StartInstant.UnixNano()))
	binary.BigEndian.PutUint64(buf[8:16], uint64(c.Period.Nanoseconds()))
	binary.BigEndian.PutUint64(buf[16:24], uint64(c.SampleCount))
	return sha256.Sum256(buf[:])
}

func (c UniformClock) Slice(from, to int) Timebase {
	if from < 0 || to > c.SampleCount || from > to {
		panic(fmt.Sprintf("dpapi: invalid UniformClock slice [%d,%d) of %d", from, to, c.SampleCount))
	}
	return UniformClock{
		StartInstant: c.StartInstant.Add(c.Period * time.Duration(from)),
		SampleCount:  to - from,
		Period:       c.Period,
	}
}

// TimestampList is an explicit, strictly increasing sequence of instants.
type TimestampList struct {
	Instants []time.Time
}

func (l TimestampList) Count() int { return len(l.Instants) }

func (l TimestampList) Start() time.Time {
	if len(l.Instants) == 0 {
		return time.Time{}
	}
	return l.Instants[0]
}

func (l TimestampList) Span() time.Duration {
	if len(l.Instants) == 0 {
		return 0
	}
	return l.Instants[len(l.Instants)-1].Sub(l.Instants[0])
}

func (l TimestampList) Fingerprint() [32]byte {
	h := sha256.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(len(l.Instants)))
	h.Write(buf[:])
	for _, t := range l.Instants {
		binary.BigEndian.PutUint64(buf[:], uint64(t.UnixNano()))
		h.Write(buf[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (l TimestampList) Slice(from, to int) Timebase {
	if from < 0 || to > len(l.Instants) || from > to {
		panic(fmt.Sprintf("dpapi: invalid TimestampList slice [%d,%d) of %d", from, to, len(l.Instants)))
	}
	out := make([]time.Time, to-from)
	copy(out, l.Instants[from:to])
	return TimestampList{Instants: out}
}

// Column is one named, typed, ordered list of values within a Frame.
type Column struct {
	Name   string
	Type   Type
	Values []Value
}

// Value is a tagged scalar carried by a Column. Only the field matching
// Type is meaningful; this mirrors how a generated protobuf oneof is
// normally projected to a friendlier Go shape at the client boundary.
type Value struct {
	Type    Type
	Bool    bool
	Int     int64
	Uint    uint64
	Float   float64
	Str     string
	Time    time.Time
	Bytes   []byte
	IsAbsent bool
}

// Absent returns the type-appropriate "value is missing" marker used when
// a source was not present within a given Correlated Block (spec.md C10).
func Absent(t Type) Value {
	return Value{Type: t, IsAbsent: true}
}

// Frame is one logical unit of ingestion: a wide, column-oriented table
// sharing a single timebase, plus descriptive metadata.
//
// Frame is owned exclusively by its caller until handed to a Frame
// Processor (pkg/ingest), which then owns it and may destroy it via
// decomposition.
type Frame struct {
	Label          string
	FrameTimestamp time.Time
	Attributes     map[string]string
	Timebase       Timebase
	Columns        []Column
}

// Validate checks the structural invariants spec.md §3 requires of a Frame:
// equal cardinality between the timebase and every column, and unique
// column names.
func (f *Frame) Validate() error {
	n := f.Timebase.Count()
	seen := make(map[string]struct{}, len(f.Columns))
	for _, col := range f.Columns {
		if _, dup := seen[col.Name]; dup {
			return fmt.Errorf("dpapi: duplicate column name %q", col.Name)
		}
		seen[col.Name] = struct{}{}
		if len(col.Values) != n {
			return fmt.Errorf("dpapi: column %q has %d values, timebase has %d", col.Name, len(col.Values), n)
		}
	}
	return nil
}

// RowCount returns the number of rows (samples) in the frame.
func (f *Frame) RowCount() int { return f.Timebase.Count() }

// Copy returns a deep copy of the frame, safe for a caller to submit twice
// without the destructive decomposition path in pkg/ingest mutating a
// value the caller still holds a reference to (spec.md §3: "supports
// split/copy").
func (f *Frame) Copy() *Frame {
	out := &Frame{
		Label:          f.Label,
		FrameTimestamp: f.FrameTimestamp,
		Timebase:       f.Timebase,
	}
	if f.Attributes != nil {
		out.Attributes = make(map[string]string, len(f.Attributes))
		for k, v := range f.Attributes {
			out.Attributes[k] = v
		}
	}
	out.Columns = make([]Column, len(f.Columns))
	for i, col := range f.Columns {
		vals := make([]Value, len(col.Values))
		copy(vals, col.Values)
		out.Columns[i] = Column{Name: col.Name, Type: col.Type, Values: vals}
	}
	return out
}

// SliceRows returns a new Frame covering rows [from, to) of f. Column
// slices borrow the underlying array (not copied) since the caller is
// expected to discard f immediately after slicing, matching the
// move-semantics decomposition spec.md §9 recommends in place of the
// original's in-place row/column removal.
func (f *Frame) SliceRows(from, to int) *Frame {
	out := &Frame{
		Label:          f.Label,
		FrameTimestamp: f.FrameTimestamp,
		Attributes:     f.Attributes,
		Timebase:       f.Timebase.Slice(from, to),
	}
	out.Columns = make([]Column, len(f.Columns))
	for i, col := range f.Columns {
		out.Columns[i] = Column{Name: col.Name, Type: col.Type, Values: col.Values[from:to]}
	}
	return out
}

// SliceColumns returns a new Frame containing only the given column
// indices, sharing the same timebase.
func (f *Frame) SliceColumns(indices []int) *Frame {
	out := &Frame{
		Label:          f.Label,
		FrameTimestamp: f.FrameTimestamp,
		Attributes:     f.Attributes,
		Timebase:       f.Timebase,
	}
	out.Columns = make([]Column, len(indices))
	for i, idx := range indices {
		out.Columns[i] = f.Columns[idx]
	}
	return out
}

// EstimatedByteSize estimates the serialized size of the frame, used by
// the Frame Processor's decomposition algorithm to decide whether a frame
// fits the configured byte budget. It is a cheap upper bound, not an exact
// wire-size computation (the real encoder is an external collaborator).
func (f *Frame) EstimatedByteSize() int {
	size := len(f.Label) + 24 + len(f.Attributes)*24
	for _, col := range f.Columns {
		size += len(col.Name) + 8
		for _, v := range col.Values {
			size += valueByteSize(v)
		}
	}
	return size
}

func valueByteSize(v Value) int {
	switch v.Type {
	case TypeBool, TypeInt8, TypeUint8:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeInt32, TypeUint32, TypeFloat32:
		return 4
	case TypeInt64, TypeUint64, TypeFloat64, TypeTimestamp:
		return 8
	case TypeString:
		return len(v.Str)
	case TypeByteArray, TypeImage, TypeStructure, TypeArray:
		return len(v.Bytes)
	default:
		return 8
	}
}
