package causallog

import "sort"

// ThreadLogDelta is the incremental portion of a single TCL that a consumer
// has not yet received: the bytes starting at OffsetFromEpoch within Epoch.
// Constructed on demand, immutable, consumed by the recipient.
type ThreadLogDelta struct {
	Epoch           EpochId
	OffsetFromEpoch uint64
	Bytes           []byte
}

func (d *ThreadLogDelta) encode(w *writer) {
	w.putUint64(uint64(d.Epoch))
	w.putUvarint(d.OffsetFromEpoch)
	w.putBytes(d.Bytes)
}

func decodeThreadLogDelta(r *reader) ThreadLogDelta {
	epoch := EpochId(r.getUint64())
	offset := r.getUvarint()
	raw := r.getBytes()
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return ThreadLogDelta{Epoch: epoch, OffsetFromEpoch: offset, Bytes: cp}
}

// VertexLogDelta is one vertex's contribution to a delta dispatch: an
// optional main-thread delta plus a sorted map of subpartition deltas.
// Empty-delta instances (no main, no subpartitions) carry no bytes — see
// HasUpdates.
type VertexLogDelta struct {
	VertexId      VertexId
	MainDelta     *ThreadLogDelta
	Subpartitions map[PartitionKey]*ThreadLogDelta
}

// HasUpdates reports whether this delta has a main-thread delta or at least
// one subpartition delta (either may itself hold zero bytes). Callers
// MUST check this before transmitting; the wire encoder refuses to encode
// an empty delta (spec §9 open question, resolved).
func (v *VertexLogDelta) HasUpdates() bool {
	return v.MainDelta != nil || len(v.Subpartitions) > 0
}

// sortedPartitionKeys returns the keys of v.Subpartitions in the total
// order defined by PartitionKey.less, grouped by Partition.
func (v *VertexLogDelta) sortedPartitionKeys() []PartitionKey {
	keys := make([]PartitionKey, 0, len(v.Subpartitions))
	for k := range v.Subpartitions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	return keys
}

// Encode serializes v per spec §6.1. It returns ErrEmptyDelta if
// !v.HasUpdates().
func (v *VertexLogDelta) Encode() ([]byte, error) {
	if !v.HasUpdates() {
		return nil, ErrEmptyDelta
	}
	w := newWriter(64)
	w.putVertexId(v.VertexId)
	if v.MainDelta != nil {
		w.putUint8(1)
		v.MainDelta.encode(w)
	} else {
		w.putUint8(0)
	}

	keys := v.sortedPartitionKeys()
	groups := groupByPartition(keys)
	w.putUvarint(uint64(len(groups)))
	for _, g := range groups {
		w.putVertexId(g.partition)
		w.putUvarint(uint64(len(g.subs)))
		for _, sub := range g.subs {
			w.putUvarint(uint64(sub))
			delta := v.Subpartitions[PartitionKey{Partition: g.partition, Subpartition: sub}]
			delta.encode(w)
		}
	}
	return w.Bytes(), nil
}

type partitionGroup struct {
	partition VertexId
	subs      []uint32
}

// groupByPartition folds a sorted key list into wire-format groups: one
// entry per distinct partition id, each carrying its subpartition indices
// in ascending order (keys are already sorted by PartitionKey.less).
func groupByPartition(keys []PartitionKey) []partitionGroup {
	var groups []partitionGroup
	for _, k := range keys {
		if len(groups) == 0 || groups[len(groups)-1].partition != k.Partition {
			groups = append(groups, partitionGroup{partition: k.Partition})
		}
		g := &groups[len(groups)-1]
		g.subs = append(g.subs, k.Subpartition)
	}
	return groups
}

// DecodeVertexLogDelta is the exact inverse of VertexLogDelta.Encode.
func DecodeVertexLogDelta(b []byte) (*VertexLogDelta, error) {
	r := newReader(b)
	v := decodeVertexLogDelta(r)
	if err := r.Complete(); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeVertexLogDelta(r *reader) *VertexLogDelta {
	v := &VertexLogDelta{Subpartitions: make(map[PartitionKey]*ThreadLogDelta)}
	v.VertexId = r.getVertexId()
	hasMain := r.getUint8()
	if r.err != nil {
		return v
	}
	if hasMain == 1 {
		d := decodeThreadLogDelta(r)
		v.MainDelta = &d
	}
	numGroups := r.getUvarint()
	for i := uint64(0); i < numGroups && r.err == nil; i++ {
		partition := r.getVertexId()
		numSubs := r.getUvarint()
		for j := uint64(0); j < numSubs && r.err == nil; j++ {
			sub := uint32(r.getUvarint())
			d := decodeThreadLogDelta(r)
			v.Subpartitions[PartitionKey{Partition: partition, Subpartition: sub}] = &d
		}
	}
	return v
}

// DeterminantRequest is the on-demand bulk-recovery request (spec §6.2).
type DeterminantRequest struct {
	VertexId   VertexId
	StartEpoch EpochId
}

func (req *DeterminantRequest) Encode() []byte {
	w := newWriter(24)
	w.putVertexId(req.VertexId)
	w.putUint64(uint64(req.StartEpoch))
	return w.Bytes()
}

func DecodeDeterminantRequest(b []byte) (*DeterminantRequest, error) {
	r := newReader(b)
	req := &DeterminantRequest{VertexId: r.getVertexId(), StartEpoch: EpochId(r.getUint64())}
	if err := r.Complete(); err != nil {
		return nil, err
	}
	return req, nil
}

// DeterminantResponse is the reply to a DeterminantRequest. Found == false
// signals "outside sharing depth; request another replica" (spec §6.2,
// §4.5).
type DeterminantResponse struct {
	Found    bool
	VertexId VertexId
	Payload  *VertexLogDelta
}

func (resp *DeterminantResponse) Encode() ([]byte, error) {
	w := newWriter(32)
	if resp.Found {
		w.putUint8(1)
	} else {
		w.putUint8(0)
	}
	w.putVertexId(resp.VertexId)
	if resp.Found && resp.Payload != nil && resp.Payload.HasUpdates() {
		w.putUint8(1)
		payload, err := resp.Payload.Encode()
		if err != nil {
			return nil, err
		}
		w.putBytes(payload)
	} else {
		w.putUint8(0)
	}
	return w.Bytes(), nil
}

func DecodeDeterminantResponse(b []byte) (*DeterminantResponse, error) {
	r := newReader(b)
	resp := &DeterminantResponse{}
	resp.Found = r.getUint8() == 1
	resp.VertexId = r.getVertexId()
	hasPayload := r.getUint8()
	if r.err != nil {
		return nil, r.Complete()
	}
	if hasPayload == 1 {
		raw := r.getBytes()
		if r.err != nil {
			return nil, r.Complete()
		}
		payload, err := DecodeVertexLogDelta(raw)
		if err != nil {
			return nil, err
		}
		resp.Payload = payload
	}
	if err := r.Complete(); err != nil {
		return nil, err
	}
	return resp, nil
}
