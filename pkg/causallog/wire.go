package causallog

import (
	"encoding/binary"
)

// writer accumulates a wire buffer for the formats in spec §6.1/§6.2/§6.4.
// It never fails: growth is just an append.
type writer struct {
	buf []byte
}

func newWriter(sizeHint int) *writer {
	return &writer{buf: make([]byte, 0, sizeHint)}
}

func (w *writer) Bytes() []byte { return w.buf }

func (w *writer) putUint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *writer) putUint64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *writer) putUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *writer) putVertexId(id VertexId) {
	w.buf = append(w.buf, id[:]...)
}

func (w *writer) putUvarint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.buf = append(w.buf, tmp[:n]...)
}

// putBytes writes a varint length prefix followed by the raw bytes.
func (w *writer) putBytes(b []byte) {
	w.putUvarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// reader consumes a wire buffer in the style of the teacher's kbin.Reader:
// every get accumulates the first error seen and becomes a no-op after
// that, so callers check once via Complete() rather than after every read.
type reader struct {
	buf []byte
	err error
}

func newReader(b []byte) *reader {
	return &reader{buf: b}
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// Complete returns the first error encountered, or an error if unconsumed
// trailing bytes remain.
func (r *reader) Complete() error {
	if r.err != nil {
		return r.err
	}
	if len(r.buf) != 0 {
		return newEncodingError("%d unexpected trailing bytes", len(r.buf))
	}
	return nil
}

func (r *reader) getUint8() uint8 {
	if r.err != nil {
		return 0
	}
	if len(r.buf) < 1 {
		r.fail(newEncodingError("buffer underflow reading uint8"))
		return 0
	}
	v := r.buf[0]
	r.buf = r.buf[1:]
	return v
}

func (r *reader) getUint64() uint64 {
	if r.err != nil {
		return 0
	}
	if len(r.buf) < 8 {
		r.fail(newEncodingError("buffer underflow reading uint64"))
		return 0
	}
	v := binary.BigEndian.Uint64(r.buf[:8])
	r.buf = r.buf[8:]
	return v
}

func (r *reader) getUint32() uint32 {
	if r.err != nil {
		return 0
	}
	if len(r.buf) < 4 {
		r.fail(newEncodingError("buffer underflow reading uint32"))
		return 0
	}
	v := binary.BigEndian.Uint32(r.buf[:4])
	r.buf = r.buf[4:]
	return v
}

func (r *reader) getVertexId() VertexId {
	var id VertexId
	if r.err != nil {
		return id
	}
	if len(r.buf) < 16 {
		r.fail(newEncodingError("buffer underflow reading vertex id"))
		return id
	}
	copy(id[:], r.buf[:16])
	r.buf = r.buf[16:]
	return id
}

func (r *reader) getUvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf)
	if n <= 0 {
		r.fail(newEncodingError("malformed varint"))
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

// getBytes reads a varint length prefix then that many raw bytes. The
// returned slice aliases the reader's input buffer; callers that retain it
// beyond the current call must copy.
func (r *reader) getBytes() []byte {
	n := r.getUvarint()
	if r.err != nil {
		return nil
	}
	if uint64(len(r.buf)) < n {
		r.fail(newEncodingError("buffer underflow reading %d-byte payload", n))
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}
