package causallog

// epochState is this slice's position in the monotone state machine
// OPEN -> CLOSED -> RECLAIMED (spec §4.5 "State machine — Epoch lifecycle").
// Transitions only move forward; no slice re-opens.
type epochState uint8

const (
	epochOpen epochState = iota
	epochClosed
	epochReclaimed
)

// epochSlice is one (epoch id, backing segment) pair. Writes land in seg;
// the slice's logical length is always seg.len().
type epochSlice struct {
	id    EpochId
	seg   *segment
	state epochState
}

func (s *epochSlice) length() int {
	return s.seg.len()
}

// epochLog is the append-ordered list of epoch slices shared by both TCL
// flavors. EpochId is monotonically increasing and slices open strictly in
// epoch order, so the slice is already sorted by construction (DESIGN.md:
// no balanced tree needed).
type epochLog struct {
	pool   *segmentPool
	vertex VertexId
	slices []*epochSlice
}

func newEpochLog(pool *segmentPool, vertex VertexId) *epochLog {
	return &epochLog{pool: pool, vertex: vertex}
}

// oldest returns the earliest retained slice, or nil if none.
func (l *epochLog) oldest() *epochSlice {
	if len(l.slices) == 0 {
		return nil
	}
	return l.slices[0]
}

// current returns the open (most recently appended) slice, or nil.
func (l *epochLog) current() *epochSlice {
	if len(l.slices) == 0 {
		return nil
	}
	return l.slices[len(l.slices)-1]
}

// find returns the slice with the given id, or nil.
func (l *epochLog) find(id EpochId) *epochSlice {
	// Linear scan: a TCL retains at most one checkpoint's worth of epochs
	// (spec §1 Non-goals), so this list is always short.
	for _, s := range l.slices {
		if s.id == id {
			return s
		}
	}
	return nil
}

// openFor returns the slice for id, opening a new one (and closing the
// previous open slice) if id is newer than anything seen so far. It never
// reopens or rewinds: for an id older than current() it returns current()
// unchanged, so callers compare the returned slice's id with the one asked.
func (l *epochLog) openFor(id EpochId) (*epochSlice, error) {
	if cur := l.current(); cur != nil {
		if id == cur.id {
			return cur, nil
		}
		if id < cur.id {
			return cur, nil // stale/out-of-order request; caller handles via its own logic
		}
		cur.state = epochClosed
	}
	seg, err := l.pool.acquire(l.vertex, id)
	if err != nil {
		return nil, err
	}
	s := &epochSlice{id: id, seg: seg, state: epochOpen}
	l.slices = append(l.slices, s)
	return s, nil
}

// reclaimBefore releases every slice with id < c, idempotently. Repeated
// calls, and calls at or below the oldest retained epoch, are no-ops
// (spec §9 open question, resolved).
func (l *epochLog) reclaimBefore(c EpochId) {
	cut := 0
	for cut < len(l.slices) && l.slices[cut].id < c {
		l.slices[cut].state = epochReclaimed
		l.slices[cut].seg.release()
		cut++
	}
	l.slices = l.slices[cut:]
}

// close releases every owned segment, idempotently.
func (l *epochLog) close() {
	for _, s := range l.slices {
		s.seg.release()
	}
	l.slices = nil
}
