package causallog

import "testing"

func TestEpochLogOpenForOrdering(t *testing.T) {
	pool := newSegmentPool(0)
	vertex := VertexIdFromUint64(0, 1)
	l := newEpochLog(pool, vertex)

	s1, err := l.openFor(1)
	if err != nil {
		t.Fatalf("openFor(1): %v", err)
	}
	s1.seg.append([]byte{1})

	s2, err := l.openFor(2)
	if err != nil {
		t.Fatalf("openFor(2): %v", err)
	}
	if s1.state != epochClosed {
		t.Fatalf("expected epoch 1 to be closed once epoch 2 opens, got state %v", s1.state)
	}
	if s2.state != epochOpen {
		t.Fatalf("expected epoch 2 to be open")
	}

	// Re-requesting the current epoch returns the same slice, no new one.
	again, err := l.openFor(2)
	if err != nil || again != s2 {
		t.Fatalf("expected openFor(2) to be idempotent for the current epoch")
	}
}

func TestEpochLogReclaimBeforeIsIdempotent(t *testing.T) {
	pool := newSegmentPool(0)
	vertex := VertexIdFromUint64(0, 1)
	l := newEpochLog(pool, vertex)

	for _, id := range []EpochId{1, 2, 3} {
		s, err := l.openFor(id)
		if err != nil {
			t.Fatalf("openFor(%d): %v", id, err)
		}
		s.seg.append([]byte{byte(id)})
	}

	l.reclaimBefore(2)
	if got := l.oldest().id; got != 2 {
		t.Fatalf("expected oldest retained epoch to be 2, got %d", got)
	}
	if len(l.slices) != 2 {
		t.Fatalf("expected epochs 2 and 3 to remain, got %d slices", len(l.slices))
	}

	// A repeated call, and a call at or below the oldest retained epoch,
	// are both no-ops (spec §9 open question, resolved).
	l.reclaimBefore(2)
	l.reclaimBefore(1)
	if len(l.slices) != 2 {
		t.Fatalf("expected reclaimBefore(2) and reclaimBefore(1) to be no-ops, got %d slices", len(l.slices))
	}
}

func TestSegmentPoolCapacityError(t *testing.T) {
	pool := newSegmentPool(1)
	vertex := VertexIdFromUint64(0, 1)

	if _, err := pool.acquire(vertex, 1); err != nil {
		t.Fatalf("first acquire should succeed: %v", err)
	}
	_, err := pool.acquire(vertex, 2)
	if err == nil {
		t.Fatal("expected CapacityError once the pool is exhausted")
	}
	if _, ok := err.(*CapacityError); !ok {
		t.Fatalf("expected *CapacityError, got %T", err)
	}
}

func TestEpochLogGrowthAtCapacityPreservesBytes(t *testing.T) {
	// Growth within a single segment is handled by bytebufferpool's own
	// dynamic Write; this asserts every appended byte survives many
	// sequential appends (spec §8: "Growth at capacity ... must preserve
	// all prior bytes").
	pool := newSegmentPool(0)
	vertex := VertexIdFromUint64(0, 1)
	l := newEpochLog(pool, vertex)

	s, err := l.openFor(1)
	if err != nil {
		t.Fatalf("openFor(1): %v", err)
	}
	for i := 0; i < 10000; i++ {
		s.seg.append([]byte{byte(i)})
	}
	if s.length() != 10000 {
		t.Fatalf("expected 10000 bytes, got %d", s.length())
	}
	for i := 0; i < 10000; i++ {
		if s.seg.bytes()[i] != byte(i) {
			t.Fatalf("byte %d corrupted after growth", i)
		}
	}
}
