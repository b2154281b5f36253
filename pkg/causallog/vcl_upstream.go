package causallog

import "sync"

// upstreamVertexCausalLog mirrors localVertexCausalLog for a vertex whose
// determinants arrive pre-flattened from a peer replica (spec §4.4): one
// Upstream TCL for main-thread content, plus a sparse map of
// (partition key -> Upstream TCL) populated lazily as subpartition deltas
// arrive.
type upstreamVertexCausalLog struct {
	vertex VertexId
	pool   *segmentPool
	logger Logger

	mainLog *upstreamThreadLog

	mu               sync.Mutex
	subpartitionLogs map[PartitionKey]*upstreamThreadLog
}

func newUpstreamVertexCausalLog(pool *segmentPool, vertex VertexId, logger Logger) *upstreamVertexCausalLog {
	if logger == nil {
		logger = NopLogger{}
	}
	return &upstreamVertexCausalLog{
		vertex:           vertex,
		pool:             pool,
		logger:           logger,
		mainLog:          newUpstreamThreadLog(pool, vertex, logger),
		subpartitionLogs: make(map[PartitionKey]*upstreamThreadLog),
	}
}

func (v *upstreamVertexCausalLog) subpartitionLog(key PartitionKey) *upstreamThreadLog {
	v.mu.Lock()
	defer v.mu.Unlock()
	tcl, ok := v.subpartitionLogs[key]
	if !ok {
		tcl = newUpstreamThreadLog(v.pool, v.vertex, v.logger)
		v.subpartitionLogs[key] = tcl
	}
	return tcl
}

// processDelta applies one inbound VertexLogDelta, routing the main
// component and each subpartition component to their respective TCLs.
func (v *upstreamVertexCausalLog) processDelta(delta *VertexLogDelta) error {
	if delta.MainDelta != nil {
		if err := v.mainLog.processUpstreamCausalLogDelta(*delta.MainDelta); err != nil {
			return err
		}
	}
	for key, d := range delta.Subpartitions {
		if err := v.subpartitionLog(key).processUpstreamCausalLogDelta(*d); err != nil {
			return err
		}
	}
	return nil
}

func (v *upstreamVertexCausalLog) registerDownstreamConsumer(consumer ConsumerId, key PartitionKey) {
	// Upstream VCLs don't route by consumer->partition mapping themselves;
	// the owning JCL decides which upstream vertices are in scope. Touching
	// the subpartition log here just ensures it exists so a later read
	// doesn't race its lazy creation.
	v.subpartitionLog(key)
}

// getNextDeterminantsForDownstream returns this upstream vertex's full
// contribution — main-thread delta plus every subpartition delta — since a
// downstream consumer replaying this vertex's causal chain needs the whole
// upstream record, not just the slice matching its own subpartition (that
// filtering applies only to the local vertex's own output, spec §4.3).
func (v *upstreamVertexCausalLog) getNextDeterminantsForDownstream(consumer ConsumerId, epoch EpochId) (*VertexLogDelta, error) {
	out := &VertexLogDelta{VertexId: v.vertex, Subpartitions: make(map[PartitionKey]*ThreadLogDelta)}
	main, err := v.mainLog.getNextDeterminantsForDownstream(consumer, epoch)
	if err != nil {
		return nil, err
	}
	if len(main.Bytes) > 0 {
		out.MainDelta = &main
	}

	v.mu.Lock()
	logs := make(map[PartitionKey]*upstreamThreadLog, len(v.subpartitionLogs))
	for k, l := range v.subpartitionLogs {
		logs[k] = l
	}
	v.mu.Unlock()

	for key, subLog := range logs {
		sub, err := subLog.getNextDeterminantsForDownstream(consumer, epoch)
		if err != nil {
			return nil, err
		}
		if len(sub.Bytes) > 0 {
			out.Subpartitions[key] = &sub
		}
	}
	return out, nil
}

// getDeterminants returns all bytes from startEpoch to the current tip
// across every owned TCL, preserving structure, for bulk recovery
// (spec §4.4, §4.5 respondToDeterminantRequest).
func (v *upstreamVertexCausalLog) getDeterminants(startEpoch EpochId) *VertexLogDelta {
	out := &VertexLogDelta{VertexId: v.vertex, Subpartitions: make(map[PartitionKey]*ThreadLogDelta)}
	if main := concatDeltas(v.mainLog.getDeterminants(startEpoch), startEpoch); main != nil {
		out.MainDelta = main
	}

	v.mu.Lock()
	logs := make(map[PartitionKey]*upstreamThreadLog, len(v.subpartitionLogs))
	for k, l := range v.subpartitionLogs {
		logs[k] = l
	}
	v.mu.Unlock()

	for key, l := range logs {
		if d := concatDeltas(l.getDeterminants(startEpoch), startEpoch); d != nil {
			out.Subpartitions[key] = d
		}
	}
	return out
}

// concatDeltas flattens a sequence of per-epoch deltas into one ThreadLogDelta
// carrying the concatenated bytes, for wire transmission during bulk
// recovery where individual epoch boundaries don't need to survive.
func concatDeltas(deltas []ThreadLogDelta, startEpoch EpochId) *ThreadLogDelta {
	if len(deltas) == 0 {
		return nil
	}
	total := 0
	for _, d := range deltas {
		total += len(d.Bytes)
	}
	if total == 0 {
		return nil
	}
	buf := make([]byte, 0, total)
	for _, d := range deltas {
		buf = append(buf, d.Bytes...)
	}
	return &ThreadLogDelta{Epoch: startEpoch, OffsetFromEpoch: 0, Bytes: buf}
}

func (v *upstreamVertexCausalLog) notifyCheckpointComplete(c EpochId) {
	v.mainLog.notifyCheckpointComplete(c)
	v.mu.Lock()
	logs := make([]*upstreamThreadLog, 0, len(v.subpartitionLogs))
	for _, l := range v.subpartitionLogs {
		logs = append(logs, l)
	}
	v.mu.Unlock()
	for _, l := range logs {
		l.notifyCheckpointComplete(c)
	}
}

func (v *upstreamVertexCausalLog) close() {
	v.mainLog.close()
	v.mu.Lock()
	logs := make([]*upstreamThreadLog, 0, len(v.subpartitionLogs))
	for _, l := range v.subpartitionLogs {
		logs = append(logs, l)
	}
	v.mu.Unlock()
	for _, l := range logs {
		l.close()
	}
}
