package causallog

import (
	"sync"
	"sync/atomic"
)

// upstreamThreadLog is a Thread Causal Log fed by deltas arriving
// concurrently from peer replicas (spec §4.2). Writers are serialized by
// mu; readers take the read side and are never blocked by other readers.
// The cursor table is guarded by its own mutex so that concurrent reads
// for distinct consumers don't contend on the segment lock at all.
type upstreamThreadLog struct {
	mu        sync.RWMutex
	vertex    VertexId
	log       *epochLog
	cursorMu  sync.Mutex
	cursors   *cursorTable
	logger    Logger
	closed    bool
	staleDrop atomic.Int64
}

// StaleDropped reports how many received deltas were discarded as stale or
// gapped (spec §7: StaleDeltaDiscarded is informational, not an error).
func (l *upstreamThreadLog) StaleDropped() int64 {
	return l.staleDrop.Load()
}

// UnknownConsumers reports how many cursors were lazily created for a
// consumer this log had not seen before (spec §7 observability counter).
func (l *upstreamThreadLog) UnknownConsumers() int64 {
	l.cursorMu.Lock()
	defer l.cursorMu.Unlock()
	return l.cursors.UnknownConsumers()
}

func newUpstreamThreadLog(pool *segmentPool, vertex VertexId, logger Logger) *upstreamThreadLog {
	if logger == nil {
		logger = NopLogger{}
	}
	return &upstreamThreadLog{
		log:     newEpochLog(pool, vertex),
		cursors: newCursorTable(logger, vertex),
		vertex:  vertex,
		logger:  logger,
	}
}

// processUpstreamCausalLogDelta applies an idempotent catch-up delta: given
// (offsetFromEpoch, bytes), let L be the epoch's current logical length and
// R = offsetFromEpoch + len(bytes). If R <= L the delta is wholly stale and
// discarded; otherwise only the final R-L bytes are appended. Safe to call
// concurrently from multiple network I/O threads.
func (l *upstreamThreadLog) processUpstreamCausalLogDelta(delta ThreadLogDelta) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	slice := l.log.find(delta.Epoch)
	if slice == nil {
		if oldest := l.log.oldest(); oldest != nil && delta.Epoch < oldest.id {
			// Already reclaimed on the receiver: discard silently (spec
			// §4.5 failure semantics).
			l.staleDrop.Add(1)
			l.logger.Log(LogLevelDebug, "stale delta discarded: epoch already reclaimed",
				"vertex", l.vertex, "epoch", delta.Epoch)
			return nil
		}
		var err error
		slice, err = l.log.openFor(delta.Epoch)
		if err != nil {
			l.logger.Log(LogLevelError, "capacity exhausted applying upstream delta",
				"vertex", l.vertex, "epoch", delta.Epoch, "error", err)
			return err
		}
		if slice.id != delta.Epoch {
			l.staleDrop.Add(1)
			l.logger.Log(LogLevelDebug, "stale delta discarded: epoch already reclaimed",
				"vertex", l.vertex, "epoch", delta.Epoch)
			return nil
		}
	}
	currentLen := slice.length()
	deltaEnd := delta.OffsetFromEpoch + uint64(len(delta.Bytes))
	if deltaEnd <= uint64(currentLen) {
		l.staleDrop.Add(1)
		l.logger.Log(LogLevelDebug, "stale delta discarded: fully contained in existing log",
			"vertex", l.vertex, "epoch", delta.Epoch, "currentLen", currentLen)
		return nil
	}
	if delta.OffsetFromEpoch > uint64(currentLen) {
		// A gap: the producer's bytes don't connect to what we have. Not
		// expressible as catch-up; drop rather than corrupt ordering.
		l.staleDrop.Add(1)
		l.logger.Log(LogLevelWarn, "stale delta discarded: gap before existing log",
			"vertex", l.vertex, "epoch", delta.Epoch, "currentLen", currentLen, "offset", delta.OffsetFromEpoch)
		return nil
	}
	newTail := delta.Bytes[uint64(currentLen)-delta.OffsetFromEpoch:]
	slice.seg.append(newTail)
	return nil
}

func (l *upstreamThreadLog) getNextDeterminantsForDownstream(consumer ConsumerId, epoch EpochId) (ThreadLogDelta, error) {
	l.mu.RLock()
	slice := l.log.find(epoch)
	var total int
	if slice != nil {
		total = slice.length()
	}
	var tail []byte
	l.cursorMu.Lock()
	cur := l.cursors.cursorFor(consumer, epoch)
	if cur.epoch != epoch {
		cur.epoch = epoch
		cur.offset = 0
	}
	if slice != nil && cur.offset < total {
		tail = make([]byte, total-cur.offset)
		copy(tail, slice.seg.bytes()[cur.offset:total])
	}
	start := cur.offset
	if slice != nil {
		cur.offset = total
	}
	l.cursorMu.Unlock()
	l.mu.RUnlock()
	return ThreadLogDelta{Epoch: epoch, OffsetFromEpoch: uint64(start), Bytes: tail}, nil
}

// getDeterminants returns all bytes from startEpoch to the current tip,
// across every retained slice with id >= startEpoch, used for bulk recovery
// (§4.4 VCL-Upstream.getDeterminants / §4.5 respondToDeterminantRequest).
func (l *upstreamThreadLog) getDeterminants(startEpoch EpochId) []ThreadLogDelta {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []ThreadLogDelta
	for _, s := range l.log.slices {
		if s.id < startEpoch {
			continue
		}
		b := make([]byte, s.length())
		copy(b, s.seg.bytes())
		out = append(out, ThreadLogDelta{Epoch: s.id, OffsetFromEpoch: 0, Bytes: b})
	}
	return out
}

func (l *upstreamThreadLog) notifyCheckpointComplete(c EpochId) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.logger.Log(LogLevelDebug, "checkpoint complete; reclaiming epochs", "vertex", l.vertex, "epoch", c)
	l.log.reclaimBefore(c)
}

func (l *upstreamThreadLog) notifyDownstreamFailure(consumer ConsumerId) {
	l.mu.RLock()
	oldest := l.log.oldest()
	l.mu.RUnlock()
	if oldest == nil {
		return
	}
	l.cursorMu.Lock()
	l.cursors.reset(consumer, oldest.id)
	l.cursorMu.Unlock()
}

func (l *upstreamThreadLog) unregisterConsumer(consumer ConsumerId) {
	l.cursorMu.Lock()
	l.cursors.forget(consumer)
	l.cursorMu.Unlock()
}

func (l *upstreamThreadLog) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.log.close()
}
