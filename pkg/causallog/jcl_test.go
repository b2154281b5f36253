package causallog

import "testing"

// Scenario 4 (spec §8): sharing-depth filter.
func TestJobCausalLogSharingDepthFilter(t *testing.T) {
	local := VertexIdFromUint64(0, 1)
	v1 := VertexIdFromUint64(0, 2) // distance -1
	v2 := VertexIdFromUint64(0, 3) // distance -2

	jcl := NewJobCausalLog(local, map[VertexId]int{v1: -1, v2: -2}, WithSharingDepth(1))

	const epoch EpochId = 1
	mkDelta := func(vertex VertexId, v uint32) *VertexLogDelta {
		return &VertexLogDelta{
			VertexId:      vertex,
			MainDelta:     &ThreadLogDelta{Epoch: epoch, Bytes: EncodeDeterminant(RNG(v))},
			Subpartitions: map[PartitionKey]*ThreadLogDelta{},
		}
	}
	if err := jcl.ProcessUpstreamVertexCausalLogDelta(mkDelta(v1, 1), epoch); err != nil {
		t.Fatal(err)
	}
	if err := jcl.ProcessUpstreamVertexCausalLogDelta(mkDelta(v2, 2), epoch); err != nil {
		t.Fatal(err)
	}
	if err := jcl.AppendDeterminant(RNG(3), epoch); err != nil {
		t.Fatal(err)
	}

	const consumer ConsumerId = 1
	jcl.RegisterDownstreamConsumer(consumer, PartitionKey{})

	deltas, err := jcl.GetNextDeterminantsForDownstream(consumer, epoch)
	if err != nil {
		t.Fatal(err)
	}

	seen := map[VertexId]bool{}
	for _, d := range deltas {
		seen[d.VertexId] = true
	}
	if !seen[v1] {
		t.Fatal("expected V1's delta (distance 1, within sharing depth) to be included")
	}
	if !seen[local] {
		t.Fatal("expected the local delta to be included")
	}
	if seen[v2] {
		t.Fatal("expected V2's delta (distance 2, beyond sharing depth) to be excluded")
	}

	resp := jcl.RespondToDeterminantRequest(v2, 0)
	if resp.Found {
		t.Fatal("expected respondToDeterminantRequest(V2, 0) to report found=false")
	}
}

func TestJobCausalLogRespondToDeterminantRequestLocal(t *testing.T) {
	local := VertexIdFromUint64(0, 1)
	jcl := NewJobCausalLog(local, nil)

	if err := jcl.AppendDeterminant(RNG(1), 1); err != nil {
		t.Fatal(err)
	}
	if err := jcl.AppendDeterminant(RNG(2), 2); err != nil {
		t.Fatal(err)
	}

	resp := jcl.RespondToDeterminantRequest(local, 1)
	if !resp.Found {
		t.Fatal("expected found=true for the local vertex")
	}
	if resp.Payload == nil || resp.Payload.MainDelta == nil {
		t.Fatal("expected a non-empty main delta covering epochs 1 and 2")
	}
	want := append(EncodeDeterminant(RNG(1)), EncodeDeterminant(RNG(2))...)
	if string(resp.Payload.MainDelta.Bytes) != string(want) {
		t.Fatalf("expected %x, got %x", want, resp.Payload.MainDelta.Bytes)
	}
}

func TestJobCausalLogZeroSharingDepthExcludesEverythingIncludingLocal(t *testing.T) {
	local := VertexIdFromUint64(0, 1)
	v1 := VertexIdFromUint64(0, 2)
	jcl := NewJobCausalLog(local, map[VertexId]int{v1: -1}, WithSharingDepth(0))

	if err := jcl.ProcessUpstreamVertexCausalLogDelta(&VertexLogDelta{
		VertexId:      v1,
		MainDelta:     &ThreadLogDelta{Epoch: 1, Bytes: EncodeDeterminant(RNG(1))},
		Subpartitions: map[PartitionKey]*ThreadLogDelta{},
	}, 1); err != nil {
		t.Fatal(err)
	}
	if err := jcl.AppendDeterminant(RNG(9), 1); err != nil {
		t.Fatal(err)
	}

	jcl.RegisterDownstreamConsumer(1, PartitionKey{})
	deltas, err := jcl.GetNextDeterminantsForDownstream(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(deltas) != 0 {
		t.Fatalf("expected sharingDepth=0 to exclude both upstream and local deltas, got %d", len(deltas))
	}
}
