package causallog

// DeterminantKind is the 1-byte tag prefixing every encoded Determinant.
type DeterminantKind uint8

const (
	KindRNG DeterminantKind = iota + 1
	KindSerializableTimer
	KindBuffer
	KindSourceCheckpoint
	KindRaw
)

// Determinant is a tagged union recording one non-deterministic execution
// choice. Exactly one of the Kind-specific fields is meaningful for a given
// value of Kind; Raw carries an opaque payload for callers that encode their
// own determinant shapes.
type Determinant struct {
	Kind DeterminantKind

	RNGValue uint32

	TimerTimestamp  int64
	TimerCallbackId uint32

	BufferSeq  uint64
	BufferKind uint8

	SourceCount uint64

	Raw []byte
}

// RNG builds an RNG determinant.
func RNG(v uint32) Determinant { return Determinant{Kind: KindRNG, RNGValue: v} }

// SerializableTimer builds a timer-firing determinant.
func SerializableTimer(ts int64, callbackId uint32) Determinant {
	return Determinant{Kind: KindSerializableTimer, TimerTimestamp: ts, TimerCallbackId: callbackId}
}

// BufferEvent builds a buffer-sequencing determinant.
func BufferEvent(seq uint64, kind uint8) Determinant {
	return Determinant{Kind: KindBuffer, BufferSeq: seq, BufferKind: kind}
}

// SourceCheckpointDeterminant builds a source-emission-count determinant.
func SourceCheckpointDeterminant(count uint64) Determinant {
	return Determinant{Kind: KindSourceCheckpoint, SourceCount: count}
}

// RawDeterminant wraps an opaque byte payload under KindRaw.
func RawDeterminant(b []byte) Determinant { return Determinant{Kind: KindRaw, Raw: b} }

// encode appends d's wire encoding (tag + variant payload) to w.
func (d Determinant) encode(w *writer) {
	w.putUint8(uint8(d.Kind))
	switch d.Kind {
	case KindRNG:
		w.putUint32(d.RNGValue)
	case KindSerializableTimer:
		w.putUint64(uint64(d.TimerTimestamp))
		w.putUint64(uint64(d.TimerCallbackId))
	case KindBuffer:
		w.putUint64(d.BufferSeq)
		w.putUint8(d.BufferKind)
	case KindSourceCheckpoint:
		w.putUint64(d.SourceCount)
	case KindRaw:
		w.putBytes(d.Raw)
	}
}

// EncodeDeterminant encodes d to a fresh byte slice.
func EncodeDeterminant(d Determinant) []byte {
	w := newWriter(16)
	d.encode(w)
	return w.Bytes()
}

// decodeDeterminant reads one tag + variant payload from r.
func decodeDeterminant(r *reader) Determinant {
	tag := DeterminantKind(r.getUint8())
	switch tag {
	case KindRNG:
		return Determinant{Kind: tag, RNGValue: r.getUint32()}
	case KindSerializableTimer:
		ts := int64(r.getUint64())
		cb := uint32(r.getUint64())
		return Determinant{Kind: tag, TimerTimestamp: ts, TimerCallbackId: cb}
	case KindBuffer:
		seq := r.getUint64()
		kind := r.getUint8()
		return Determinant{Kind: tag, BufferSeq: seq, BufferKind: kind}
	case KindSourceCheckpoint:
		return Determinant{Kind: tag, SourceCount: r.getUint64()}
	case KindRaw:
		raw := r.getBytes()
		cp := make([]byte, len(raw))
		copy(cp, raw)
		return Determinant{Kind: tag, Raw: cp}
	default:
		r.fail(newEncodingError("unrecognized determinant tag %d", tag))
		return Determinant{}
	}
}

// DecodeDeterminant is the exact inverse of EncodeDeterminant.
func DecodeDeterminant(b []byte) (Determinant, error) {
	r := newReader(b)
	d := decodeDeterminant(r)
	if err := r.Complete(); err != nil {
		return Determinant{}, err
	}
	return d, nil
}
