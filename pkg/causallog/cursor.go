package causallog

import "sync/atomic"

// consumerCursor tracks how much of one epoch a single consumer has already
// received: (epoch, offset within that epoch). Lazily created on first
// read, advanced monotonically by delta dispatch, rebased to the earliest
// retained epoch on notifyDownstreamFailure.
type consumerCursor struct {
	epoch  EpochId
	offset int
}

// cursorTable is the per-TCL map from consumer to cursor. Guarded by
// whatever lock the owning TCL already takes for its slice list — it is
// never exposed outside this package.
type cursorTable struct {
	logger Logger
	vertex VertexId

	cursors         map[ConsumerId]*consumerCursor
	unknownConsumer atomic.Int64
}

func newCursorTable(logger Logger, vertex VertexId) *cursorTable {
	if logger == nil {
		logger = NopLogger{}
	}
	return &cursorTable{logger: logger, vertex: vertex, cursors: make(map[ConsumerId]*consumerCursor)}
}

// cursorFor returns the consumer's cursor, lazily creating one pinned to
// the start of startEpoch if this is the first read from this consumer
// (spec §4.1: "If the consumer is unknown, its cursor is lazily created at
// the start of epoch"). Lazy creation is counted and logged as the
// UnknownConsumer observability signal (spec §7: informational, not an
// error).
func (t *cursorTable) cursorFor(c ConsumerId, startEpoch EpochId) *consumerCursor {
	cur, ok := t.cursors[c]
	if !ok {
		t.unknownConsumer.Add(1)
		t.logger.Log(LogLevelDebug, "unknown consumer; creating cursor",
			"vertex", t.vertex, "consumer", c, "epoch", startEpoch)
		cur = &consumerCursor{epoch: startEpoch, offset: 0}
		t.cursors[c] = cur
	}
	return cur
}

// UnknownConsumers reports how many cursors were lazily created for a
// consumer this table had not seen before.
func (t *cursorTable) UnknownConsumers() int64 {
	return t.unknownConsumer.Load()
}

// reset rebases a known consumer's cursor to the earliest retained epoch at
// offset 0 (notifyDownstreamFailure, spec §4.1). Unknown consumers are a
// no-op: they have nothing to rebase.
func (t *cursorTable) reset(c ConsumerId, earliest EpochId) {
	if cur, ok := t.cursors[c]; ok {
		cur.epoch = earliest
		cur.offset = 0
	}
}

// forget removes a consumer's cursor (unregisterDownstreamConsumer).
func (t *cursorTable) forget(c ConsumerId) {
	delete(t.cursors, c)
}
