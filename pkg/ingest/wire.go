package ingest

import (
	"github.com/osprey-dcs/dp-client-go/pkg/dpapi"
	"github.com/osprey-dcs/dp-client-go/pkg/dpgrpc"
)

func toWireTimebase(tb dpapi.Timebase) dpgrpc.WireTimebase {
	switch t := tb.(type) {
	case dpapi.UniformClock:
		return dpgrpc.WireTimebase{
			IsUniform:   true,
			StartNanos:  t.StartInstant.UnixNano(),
			PeriodNanos: t.Period.Nanoseconds(),
			Count:       int64(t.SampleCount),
		}
	case dpapi.TimestampList:
		out := make([]dpgrpc.WireTimestamp, len(t.Instants))
		for i, ts := range t.Instants {
			out[i] = dpgrpc.WireTimestamp{Seconds: ts.Unix(), Nanos: int32(ts.Nanosecond())}
		}
		return dpgrpc.WireTimebase{Timestamps: out}
	default:
		panic("ingest: unknown Timebase implementation")
	}
}

func toWireType(t dpapi.Type) int32 { return int32(t) }

func toWireColumn(col dpapi.Column) dpgrpc.WireColumn {
	return dpgrpc.WireColumn{
		Name:  col.Name,
		Type:  toWireType(col.Type),
		Bytes: encodeColumn(col),
	}
}

// encodeColumn is a minimal, self-consistent byte encoding used only so
// EstimatedByteSize-driven decomposition and wire transmission agree on
// what "serialized size" means. A real deployment's wire encoding is an
// external collaborator (spec.md §1); this module never decodes these
// bytes itself.
func encodeColumn(col dpapi.Column) []byte {
	buf := make([]byte, 0, len(col.Values)*8)
	for _, v := range col.Values {
		switch v.Type {
		case dpapi.TypeString:
			buf = append(buf, []byte(v.Str)...)
		case dpapi.TypeByteArray, dpapi.TypeImage, dpapi.TypeStructure, dpapi.TypeArray:
			buf = append(buf, v.Bytes...)
		default:
			width := 8
			switch v.Type {
			case dpapi.TypeBool, dpapi.TypeInt8, dpapi.TypeUint8:
				width = 1
			case dpapi.TypeInt16, dpapi.TypeUint16:
				width = 2
			case dpapi.TypeInt32, dpapi.TypeUint32, dpapi.TypeFloat32:
				width = 4
			}
			buf = append(buf, make([]byte, width)...)
		}
	}
	return buf
}

// frameToDescriptor converts a Frame into the wire FrameDescriptor shape.
func frameToDescriptor(f *dpapi.Frame) dpgrpc.FrameDescriptor {
	sources := make([]string, len(f.Columns))
	columns := make([]dpgrpc.WireColumn, len(f.Columns))
	for i, col := range f.Columns {
		sources[i] = col.Name
		columns[i] = toWireColumn(col)
	}
	return dpgrpc.FrameDescriptor{
		Timebase: toWireTimebase(f.Timebase),
		Sources:  sources,
		Columns:  columns,
	}
}
