package query

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/osprey-dcs/dp-client-go/pkg/dpapi"
	"github.com/osprey-dcs/dp-client-go/pkg/dperrors"
	"github.com/osprey-dcs/dp-client-go/pkg/dpgrpc"
)

// toWireRequest translates a decomposed dpapi.Request into the wire
// QueryRequest shape.
func toWireRequest(r *dpapi.Request) *dpgrpc.QueryRequest {
	tr := r.Range()
	return &dpgrpc.QueryRequest{
		Sources: r.Sources(),
		Begin:   tr.Begin,
		End:     tr.End,
	}
}

func fromWireTimebase(w dpgrpc.WireTimebase) dpapi.Timebase {
	if w.IsUniform {
		return dpapi.UniformClock{
			StartInstant: time.Unix(0, w.StartNanos).UTC(),
			Period:       time.Duration(w.PeriodNanos),
			SampleCount:  int(w.Count),
		}
	}
	instants := make([]time.Time, len(w.Timestamps))
	for i, ts := range w.Timestamps {
		instants[i] = time.Unix(ts.Seconds, int64(ts.Nanos)).UTC()
	}
	return dpapi.TimestampList{Instants: instants}
}

// decodeColumn is this package's own reverse of pkg/ingest's placeholder
// encodeColumn, scoped to the fixed-width scalar types a telemetry query
// realistically returns. Variable-length types are out of scope for this
// placeholder codec (spec.md §1 treats the wire encoding as an external
// collaborator); a real deployment's generated stub would hand back typed
// values directly instead of raw bytes.
func decodeColumn(name string, typ int32, count int, raw []byte) (dpapi.Column, error) {
	t := dpapi.Type(typ)
	width, ok := fixedWidth(t)
	if !ok {
		return dpapi.Column{}, dperrors.Consistencyf("query: column %q has non-fixed-width type %s, unsupported by the placeholder wire codec", name, t)
	}
	if width*count != len(raw) {
		return dpapi.Column{}, dperrors.Consistencyf("query: column %q expects %d bytes for %d rows of %s, got %d", name, width*count, count, t, len(raw))
	}

	values := make([]dpapi.Value, count)
	for i := 0; i < count; i++ {
		chunk := raw[i*width : (i+1)*width]
		values[i] = decodeValue(t, chunk)
	}
	return dpapi.Column{Name: name, Type: t, Values: values}, nil
}

func decodeValue(t dpapi.Type, b []byte) dpapi.Value {
	switch t {
	case dpapi.TypeBool:
		return dpapi.Value{Type: t, Bool: b[0] != 0}
	case dpapi.TypeInt8:
		return dpapi.Value{Type: t, Int: int64(int8(b[0]))}
	case dpapi.TypeUint8:
		return dpapi.Value{Type: t, Uint: uint64(b[0])}
	case dpapi.TypeInt16:
		return dpapi.Value{Type: t, Int: int64(int16(binary.LittleEndian.Uint16(b)))}
	case dpapi.TypeUint16:
		return dpapi.Value{Type: t, Uint: uint64(binary.LittleEndian.Uint16(b))}
	case dpapi.TypeInt32:
		return dpapi.Value{Type: t, Int: int64(int32(binary.LittleEndian.Uint32(b)))}
	case dpapi.TypeUint32:
		return dpapi.Value{Type: t, Uint: uint64(binary.LittleEndian.Uint32(b))}
	case dpapi.TypeFloat32:
		return dpapi.Value{Type: t, Float: float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))}
	case dpapi.TypeInt64:
		return dpapi.Value{Type: t, Int: int64(binary.LittleEndian.Uint64(b))}
	case dpapi.TypeUint64:
		return dpapi.Value{Type: t, Uint: binary.LittleEndian.Uint64(b)}
	case dpapi.TypeFloat64:
		return dpapi.Value{Type: t, Float: math.Float64frombits(binary.LittleEndian.Uint64(b))}
	case dpapi.TypeTimestamp:
		return dpapi.Value{Type: t, Int: int64(binary.LittleEndian.Uint64(b))}
	default:
		return dpapi.Value{Type: t}
	}
}

// encodeValue is the encoder symmetric with decodeValue, used by this
// package's own tests and by in-memory fakes that need to round-trip a
// dpapi.Column through the wire shape.
func encodeValue(v dpapi.Value) []byte {
	switch v.Type {
	case dpapi.TypeBool:
		if v.Bool {
			return []byte{1}
		}
		return []byte{0}
	case dpapi.TypeInt8:
		return []byte{byte(int8(v.Int))}
	case dpapi.TypeUint8:
		return []byte{byte(v.Uint)}
	case dpapi.TypeInt16:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(int16(v.Int)))
		return b
	case dpapi.TypeUint16:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(v.Uint))
		return b
	case dpapi.TypeInt32:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(int32(v.Int)))
		return b
	case dpapi.TypeUint32:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(v.Uint))
		return b
	case dpapi.TypeFloat32:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v.Float)))
		return b
	case dpapi.TypeInt64, dpapi.TypeTimestamp:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(v.Int))
		return b
	case dpapi.TypeUint64:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, v.Uint)
		return b
	case dpapi.TypeFloat64:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(v.Float))
		return b
	default:
		return nil
	}
}

func fixedWidth(t dpapi.Type) (int, bool) {
	switch t {
	case dpapi.TypeBool, dpapi.TypeInt8, dpapi.TypeUint8:
		return 1, true
	case dpapi.TypeInt16, dpapi.TypeUint16:
		return 2, true
	case dpapi.TypeInt32, dpapi.TypeUint32, dpapi.TypeFloat32:
		return 4, true
	case dpapi.TypeInt64, dpapi.TypeUint64, dpapi.TypeFloat64, dpapi.TypeTimestamp:
		return 8, true
	default:
		return 0, false
	}
}
