package causallog

import "sync"

// localVertexCausalLog is this replica's own vertex log: a main-thread TCL
// plus one TCL per (partition, subpartition) a consumer might read (spec
// §4.3). A consumer is causally affected only by the subpartition it
// actually reads plus the vertex's main-thread determinants; other
// subpartitions are never forwarded to it.
type localVertexCausalLog struct {
	vertex VertexId
	pool   *segmentPool
	logger Logger

	mainLog *localThreadLog

	mu                 sync.Mutex
	subpartitionLogs   map[PartitionKey]*localThreadLog
	consumerPartitions map[ConsumerId]PartitionKey
}

func newLocalVertexCausalLog(pool *segmentPool, vertex VertexId, logger Logger) *localVertexCausalLog {
	if logger == nil {
		logger = NopLogger{}
	}
	return &localVertexCausalLog{
		vertex:             vertex,
		pool:               pool,
		logger:             logger,
		mainLog:            newLocalThreadLog(pool, vertex, logger),
		subpartitionLogs:   make(map[PartitionKey]*localThreadLog),
		consumerPartitions: make(map[ConsumerId]PartitionKey),
	}
}

func (v *localVertexCausalLog) appendDeterminant(d Determinant, epoch EpochId) error {
	return v.mainLog.appendDeterminant(d, epoch)
}

func (v *localVertexCausalLog) subpartitionLog(key PartitionKey) *localThreadLog {
	v.mu.Lock()
	defer v.mu.Unlock()
	tcl, ok := v.subpartitionLogs[key]
	if !ok {
		tcl = newLocalThreadLog(v.pool, v.vertex, v.logger)
		v.subpartitionLogs[key] = tcl
	}
	return tcl
}

func (v *localVertexCausalLog) appendSubpartitionDeterminant(d Determinant, epoch EpochId, key PartitionKey) error {
	return v.subpartitionLog(key).appendDeterminant(d, epoch)
}

// registerDownstreamConsumer records which subpartition consumer reads.
// Cursor creation is deferred to first read (spec §4.3).
func (v *localVertexCausalLog) registerDownstreamConsumer(consumer ConsumerId, key PartitionKey) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.consumerPartitions[consumer] = key
}

func (v *localVertexCausalLog) unregisterDownstreamConsumer(consumer ConsumerId) {
	v.mu.Lock()
	key, ok := v.consumerPartitions[consumer]
	delete(v.consumerPartitions, consumer)
	subLog := v.subpartitionLogs[key]
	v.mu.Unlock()

	v.mainLog.unregisterConsumer(consumer)
	if ok && subLog != nil {
		subLog.unregisterConsumer(consumer)
	}
}

// getNextDeterminantsForDownstream reads the main-thread delta and the
// single subpartition delta relevant to consumer. Empty deltas are elided.
func (v *localVertexCausalLog) getNextDeterminantsForDownstream(consumer ConsumerId, epoch EpochId) (*VertexLogDelta, error) {
	out := &VertexLogDelta{VertexId: v.vertex, Subpartitions: make(map[PartitionKey]*ThreadLogDelta)}

	main, err := v.mainLog.getNextDeterminantsForDownstream(consumer, epoch)
	if err != nil {
		return nil, err
	}
	if len(main.Bytes) > 0 {
		out.MainDelta = &main
	}

	v.mu.Lock()
	key, ok := v.consumerPartitions[consumer]
	subLog := v.subpartitionLogs[key]
	v.mu.Unlock()

	if ok && subLog != nil {
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

func (v *localVertexCausalLog) notifyCheckpointComplete(c EpochId) {
	v.mainLog.notifyCheckpointComplete(c)
	v.mu.Lock()
	logs := make([]*localThreadLog, 0, len(v.subpartitionLogs))
	for _, l := range v.subpartitionLogs {
		logs = append(logs, l)
	}
	v.mu.Unlock()
	for _, l := range logs {
		l.notifyCheckpointComplete(c)
	}
}

func (v *localVertexCausalLog) notifyDownstreamFailure(consumer ConsumerId) {
	v.mainLog.notifyDownstreamFailure(consumer)
	v.mu.Lock()
	key, ok := v.consumerPartitions[consumer]
	subLog := v.subpartitionLogs[key]
	v.mu.Unlock()
	if ok && subLog != nil {
		subLog.notifyDownstreamFailure(consumer)
	}
}

func (v *localVertexCausalLog) close() {
	v.mainLog.close()
	v.mu.Lock()
	logs := make([]*localThreadLog, 0, len(v.subpartitionLogs))
	for _, l := range v.subpartitionLogs {
		logs = append(logs, l)
	}
	v.mu.Unlock()
	for _, l := range logs {
		l.close()
	}
}
