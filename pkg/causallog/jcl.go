package causallog

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// upstreamEntry pairs an Upstream VCL with its fixed topological distance
// from the local vertex (negative upstream, per spec §4.5 state).
type upstreamEntry struct {
	vcl      *upstreamVertexCausalLog
	distance int
}

// JobCausalLog is the top-level coordinator: it owns this replica's local
// VCL and a map from upstream vertex id to an Upstream VCL accumulating
// deltas from peers, applying the sharing-depth filter when assembling
// deltas for downstream consumers and when answering recovery requests
// (spec §4.5).
type JobCausalLog struct {
	cfg *cfg

	vertex VertexId
	pool   *segmentPool
	local  *localVertexCausalLog

	distances map[VertexId]int // fixed at construction: job topology doesn't change mid-run

	upstreamMu sync.Mutex   // serializes the rare copy-on-write swap below
	upstream   atomic.Value // holds map[VertexId]*upstreamEntry, read lock-free

	vertexLock        *sync.Mutex // external, shared with the operator runtime
	assertLockInDebug bool
}

// NewJobCausalLog constructs a JobCausalLog for localVertex. distances
// gives the fixed topological distance (negative upstream) of every
// upstream vertex known at job-graph construction time; entries absent
// from distances may still appear later via processUpstreamVertexCausalLogDelta
// or respondToDeterminantRequest, which create them lazily at distance 0
// (treated as in-scope, since an undeclared vertex has no other signal to
// filter on).
func NewJobCausalLog(localVertex VertexId, distances map[VertexId]int, opts ...Opt) *JobCausalLog {
	c := defaultCfg()
	for _, opt := range opts {
		opt(c)
	}
	dcopy := make(map[VertexId]int, len(distances))
	for k, v := range distances {
		dcopy[k] = v
	}
	pool := newSegmentPool(c.maxSegmentsPerPool)
	j := &JobCausalLog{
		cfg:       c,
		vertex:    localVertex,
		pool:      pool,
		local:     newLocalVertexCausalLog(pool, localVertex, c.logger),
		distances: dcopy,
	}
	j.upstream.Store(map[VertexId]*upstreamEntry{})
	return j
}

// WithVertexLock binds the external per-vertex lock this JCL must not
// re-serialize around. When debugAssert is true, appendDeterminant* panics
// if called without the lock held (spec §9: "asserts holding in debug
// builds").
func (j *JobCausalLog) WithVertexLock(lock *sync.Mutex, debugAssert bool) *JobCausalLog {
	j.vertexLock = lock
	j.assertLockInDebug = debugAssert
	return j
}

func (j *JobCausalLog) assertLockHeld() {
	if !j.assertLockInDebug || j.vertexLock == nil {
		return
	}
	if j.vertexLock.TryLock() {
		j.vertexLock.Unlock()
		panic("causallog: appendDeterminant called without holding the vertex lock")
	}
}

func (j *JobCausalLog) loadUpstream() map[VertexId]*upstreamEntry {
	return j.upstream.Load().(map[VertexId]*upstreamEntry)
}

// getOrCreateUpstream returns the Upstream VCL for vertexId, creating one
// lazily at the given distance if this is the first time it's been seen.
// Copy-on-write over an atomic.Value, mirroring the teacher's loadTopics()
// pattern: reads are lock-free, writes take upstreamMu and happen once per
// new upstream vertex.
func (j *JobCausalLog) getOrCreateUpstream(vertexId VertexId, distanceIfNew int) *upstreamEntry {
	if e, ok := j.loadUpstream()[vertexId]; ok {
		return e
	}
	j.upstreamMu.Lock()
	defer j.upstreamMu.Unlock()
	cur := j.loadUpstream()
	if e, ok := cur[vertexId]; ok {
		return e
	}
	next := make(map[VertexId]*upstreamEntry, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	j.cfg.logger.Log(LogLevelInfo, "creating upstream vertex causal log",
		"vertex", j.vertex, "upstream", vertexId, "distance", distanceIfNew)
	entry := &upstreamEntry{vcl: newUpstreamVertexCausalLog(j.pool, vertexId, j.cfg.logger), distance: distanceIfNew}
	next[vertexId] = entry
	j.upstream.Store(next)
	return entry
}

// distanceFor returns the configured distance for vertexId, defaulting to
// 0 (in-scope) for a vertex the host never declared in its topology map.
func (j *JobCausalLog) distanceFor(vertexId VertexId) int {
	if d, ok := j.distances[vertexId]; ok {
		return d
	}
	return 0
}

// appendDeterminant delegates to the local log. Caller MUST hold the
// vertex lock.
func (j *JobCausalLog) AppendDeterminant(d Determinant, epoch EpochId) error {
	j.assertLockHeld()
	return j.local.appendDeterminant(d, epoch)
}

// appendSubpartitionDeterminant delegates to the local log. Caller MUST
// hold the vertex lock.
func (j *JobCausalLog) AppendSubpartitionDeterminant(d Determinant, epoch EpochId, key PartitionKey) error {
	j.assertLockHeld()
	return j.local.appendSubpartitionDeterminant(d, epoch, key)
}

// processUpstreamVertexCausalLogDelta looks up or lazily creates the
// Upstream VCL for delta.VertexId and forwards the delta. Safe to call from
// network I/O threads concurrently with producer appends.
func (j *JobCausalLog) ProcessUpstreamVertexCausalLogDelta(delta *VertexLogDelta, epoch EpochId) error {
	entry := j.getOrCreateUpstream(delta.VertexId, j.distanceFor(delta.VertexId))
	return entry.vcl.processDelta(delta)
}

// registerDownstreamConsumer registers consumer on the local VCL and on
// every current upstream VCL.
func (j *JobCausalLog) RegisterDownstreamConsumer(consumer ConsumerId, key PartitionKey) {
	j.local.registerDownstreamConsumer(consumer, key)
	for _, e := range j.loadUpstream() {
		e.vcl.registerDownstreamConsumer(consumer, key)
	}
}

func (j *JobCausalLog) UnregisterDownstreamConsumer(consumer ConsumerId) {
	j.local.unregisterDownstreamConsumer(consumer)
}

// inScope reports whether distance d is within the configured sharing
// depth (spec §3 invariant 6; d=-1 unbounded). With d=0 only distance-0
// vertices pass; GetNextDeterminantsForDownstream additionally leaves out
// the local delta when d=0.
func (j *JobCausalLog) inScope(absDistance int) bool {
	return j.cfg.sharingDepth < 0 || absDistance <= j.cfg.sharingDepth
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// respondToDeterminantRequest serves bulk recovery (spec §4.5). If the
// vertex is outside the configured sharing depth, returns found=false.
// Otherwise returns every determinant for vertexId from startEpoch to the
// tip, creating an empty Upstream VCL if none exists yet so a later
// streaming delta has somewhere to land.
func (j *JobCausalLog) RespondToDeterminantRequest(vertexId VertexId, startEpoch EpochId) *DeterminantResponse {
	if vertexId == j.vertex {
		payload := j.localRecoveryPayload(startEpoch)
		return &DeterminantResponse{Found: true, VertexId: vertexId, Payload: payload}
	}

	dist := j.distanceFor(vertexId)
	entry := j.getOrCreateUpstream(vertexId, dist)
	if !j.inScope(abs(entry.distance)) {
		j.cfg.logger.Log(LogLevelDebug, "determinant request outside sharing depth",
			"vertex", j.vertex, "requested", vertexId, "distance", entry.distance, "sharingDepth", j.cfg.sharingDepth)
		return &DeterminantResponse{Found: false, VertexId: vertexId}
	}
	payload := entry.vcl.getDeterminants(startEpoch)
	return &DeterminantResponse{Found: true, VertexId: vertexId, Payload: payload}
}

// localRecoveryPayload assembles a bulk-recovery payload for the local
// vertex by draining getDeterminants-equivalent state from the local VCL's
// TCLs. The local VCL doesn't expose getDeterminants directly (it's a
// live producer log, not a replay target), so this walks its TCLs the same
// way upstreamVertexCausalLog.getDeterminants does.
func (j *JobCausalLog) localRecoveryPayload(startEpoch EpochId) *VertexLogDelta {
	out := &VertexLogDelta{VertexId: j.vertex, Subpartitions: make(map[PartitionKey]*ThreadLogDelta)}
	j.local.mainLog.mu.Lock()
	var mainDeltas []ThreadLogDelta
	for _, s := range j.local.mainLog.log.slices {
		if s.id < startEpoch {
			continue
		}
		b := make([]byte, s.length())
		copy(b, s.seg.bytes())
		mainDeltas = append(mainDeltas, ThreadLogDelta{Epoch: s.id, Bytes: b})
	}
	j.local.mainLog.mu.Unlock()
	if main := concatDeltas(mainDeltas, startEpoch); main != nil {
		out.MainDelta = main
	}

	j.local.mu.Lock()
	subLogs := make(map[PartitionKey]*localThreadLog, len(j.local.subpartitionLogs))
	for k, l := range j.local.subpartitionLogs {
		subLogs[k] = l
	}
	j.local.mu.Unlock()

	for key, l := range subLogs {
		l.mu.Lock()
		var deltas []ThreadLogDelta
		for _, s := range l.log.slices {
			if s.id < startEpoch {
				continue
			}
			b := make([]byte, s.length())
			copy(b, s.seg.bytes())
			deltas = append(deltas, ThreadLogDelta{Epoch: s.id, Bytes: b})
		}
		l.mu.Unlock()
		if d := concatDeltas(deltas, startEpoch); d != nil {
			out.Subpartitions[key] = d
		}
	}
	return out
}

// getNextDeterminantsForDownstream assembles, for consumer, the local
// delta (unless sharing depth is 0) plus every in-scope upstream vertex's
// delta, fanning the upstream lookups out with errgroup so one slow VCL
// cannot block the others.
func (j *JobCausalLog) GetNextDeterminantsForDownstream(consumer ConsumerId, epoch EpochId) ([]*VertexLogDelta, error) {
	upstream := j.loadUpstream()
	results := make([]*VertexLogDelta, len(upstream))
	entries := make([]*upstreamEntry, 0, len(upstream))
	for _, e := range upstream {
		entries = append(entries, e)
	}

	g := new(errgroup.Group)
	for i, e := range entries {
		i, e := i, e
		if !j.inScope(abs(e.distance)) {
			continue
		}
		g.Go(func() error {
			d, err := e.vcl.getNextDeterminantsForDownstream(consumer, epoch)
			if err != nil {
				return err
			}
			if d.HasUpdates() {
				results[i] = d
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*VertexLogDelta, 0, len(results)+1)
	if j.cfg.sharingDepth != 0 {
		local, err := j.local.getNextDeterminantsForDownstream(consumer, epoch)
		if err != nil {
			return nil, err
		}
		if local.HasUpdates() {
			out = append(out, local)
		}
	}
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

// notifyCheckpointComplete broadcasts c to the local VCL and every upstream
// VCL; each of them reclaims its slices older than c within this call.
func (j *JobCausalLog) NotifyCheckpointComplete(c EpochId) {
	j.cfg.logger.Log(LogLevelInfo, "broadcasting checkpoint complete", "vertex", j.vertex, "epoch", c)
	j.local.notifyCheckpointComplete(c)
	for _, e := range j.loadUpstream() {
		e.vcl.notifyCheckpointComplete(c)
	}
}

func (j *JobCausalLog) NotifyDownstreamFailure(consumer ConsumerId) {
	j.local.notifyDownstreamFailure(consumer)
}

func (j *JobCausalLog) Close() {
	j.local.close()
	for _, e := range j.loadUpstream() {
		e.vcl.close()
	}
}
