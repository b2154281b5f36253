package causallog

import (
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
)

// defaultMaxSegments bounds how many pooled segments a single segmentPool
// will hand out concurrently before returning CapacityError. Segments are
// released back to the pool as soon as every reference drops, so this is a
// concurrency bound, not a total-log-size bound.
const defaultMaxSegments = 1 << 16

// segment is a reference-counted byte buffer obtained from a segmentPool.
// The log's own reference is released on reclamation (§3 invariant 5).
// Delta reads copy bytes out of the segment and take no reference of their
// own, so the log's reference is the only one this package holds.
type segment struct {
	pool *segmentPool
	buf  *bytebufferpool.ByteBuffer
	refs atomic.Int32
}

func (s *segment) retain() {
	s.refs.Add(1)
}

// release drops one reference; when the last reference drops, the backing
// buffer is reset and returned to the pool.
func (s *segment) release() {
	if s.refs.Add(-1) == 0 {
		s.buf.Reset()
		s.pool.put(s.buf)
	}
}

func (s *segment) append(b []byte) {
	s.buf.Write(b) //nolint:errcheck // bytebufferpool.Write never errors
}

func (s *segment) len() int {
	return s.buf.Len()
}

func (s *segment) bytes() []byte {
	return s.buf.Bytes()
}

// segmentPool wraps a shared bytebufferpool.Pool with a bound on the number
// of segments concurrently on loan, surfacing CapacityError on exhaustion
// instead of growing without limit (spec §7).
type segmentPool struct {
	pool      *bytebufferpool.Pool
	onLoan    atomic.Int64
	maxLoaned int64
}

func newSegmentPool(maxLoaned int64) *segmentPool {
	if maxLoaned <= 0 {
		maxLoaned = defaultMaxSegments
	}
	return &segmentPool{pool: new(bytebufferpool.Pool), maxLoaned: maxLoaned}
}

// acquire hands out a fresh segment with one (the log's) reference held.
func (p *segmentPool) acquire(vertex VertexId, epoch EpochId) (*segment, error) {
	if p.onLoan.Add(1) > p.maxLoaned {
		p.onLoan.Add(-1)
		return nil, &CapacityError{Vertex: vertex, Epoch: epoch}
	}
	s := &segment{pool: p, buf: p.pool.Get()}
	s.refs.Store(1)
	return s, nil
}

func (p *segmentPool) put(buf *bytebufferpool.ByteBuffer) {
	p.pool.Put(buf)
	p.onLoan.Add(-1)
}
