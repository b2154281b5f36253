package causallog

import "sync"

// localThreadLog is a Thread Causal Log backing a single producer thread
// (spec §4.1). Callers serialize appendDeterminant via an external
// per-vertex lock; the mutex here guards only this log's own bookkeeping
// (slice list, cursor table) against concurrent readers on network I/O
// threads — it never re-serializes the append ordering the caller already
// owns (spec §9: "must not introduce a second lock on the same critical
// section").
type localThreadLog struct {
	mu      sync.Mutex
	vertex  VertexId
	log     *epochLog
	cursors *cursorTable
	logger  Logger
	closed  bool
}

func newLocalThreadLog(pool *segmentPool, vertex VertexId, logger Logger) *localThreadLog {
	if logger == nil {
		logger = NopLogger{}
	}
	return &localThreadLog{
		log:     newEpochLog(pool, vertex),
		cursors: newCursorTable(logger, vertex),
		vertex:  vertex,
		logger:  logger,
	}
}

// appendDeterminant encodes d and appends it to epoch's slice, opening a
// new slice if epoch is newer than the current one. Must be called with the
// vertex lock held.
func (l *localThreadLog) appendDeterminant(d Determinant, epoch EpochId) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	slice, err := l.log.openFor(epoch)
	if err != nil {
		l.logger.Log(LogLevelError, "capacity exhausted appending determinant",
			"vertex", l.vertex, "epoch", epoch, "error", err)
		return err
	}
	slice.seg.append(EncodeDeterminant(d))
	return nil
}

// getNextDeterminantsForDownstream returns the bytes between consumer's
// cursor and the writer position within epoch, advancing the cursor.
func (l *localThreadLog) getNextDeterminantsForDownstream(consumer ConsumerId, epoch EpochId) (ThreadLogDelta, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ThreadLogDelta{Epoch: epoch}, nil
	}
	slice := l.log.find(epoch)
	if slice == nil {
		// Older than any retained slice, or not opened yet: empty delta.
		l.cursors.cursorFor(consumer, epoch)
		return ThreadLogDelta{Epoch: epoch}, nil
	}
	cur := l.cursors.cursorFor(consumer, epoch)
	if cur.epoch != epoch {
		cur.epoch = epoch
		cur.offset = 0
	}
	total := slice.length()
	if cur.offset >= total {
		return ThreadLogDelta{Epoch: epoch, OffsetFromEpoch: uint64(cur.offset)}, nil
	}
	start := cur.offset
	bytes := make([]byte, total-start)
	copy(bytes, slice.seg.bytes()[start:total])
	cur.offset = total
	return ThreadLogDelta{Epoch: epoch, OffsetFromEpoch: uint64(start), Bytes: bytes}, nil
}

// notifyCheckpointComplete reclaims every slice with id < c.
func (l *localThreadLog) notifyCheckpointComplete(c EpochId) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.logger.Log(LogLevelDebug, "checkpoint complete; reclaiming epochs", "vertex", l.vertex, "epoch", c)
	l.log.reclaimBefore(c)
}

// UnknownConsumers reports how many cursors were lazily created for a
// consumer this log had not seen before (spec §7 observability counter).
func (l *localThreadLog) UnknownConsumers() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursors.UnknownConsumers()
}

// notifyDownstreamFailure resets consumer's cursor to the earliest retained
// epoch at offset 0.
func (l *localThreadLog) notifyDownstreamFailure(consumer ConsumerId) {
	l.mu.Lock()
	defer l.mu.Unlock()
	oldest := l.log.oldest()
	if oldest == nil {
		return
	}
	l.cursors.reset(consumer, oldest.id)
}

func (l *localThreadLog) unregisterConsumer(consumer ConsumerId) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cursors.forget(consumer)
}

// logLength reports total live bytes across all retained slices.
func (l *localThreadLog) logLength() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, s := range l.log.slices {
		total += s.length()
	}
	return total
}

func (l *localThreadLog) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.log.close()
}
