package causallog

import (
	"bytes"
	"testing"
)

// Scenario 1 (spec §8): single producer, single consumer, one epoch.
func TestLocalThreadLogSingleEpochDelivery(t *testing.T) {
	pool := newSegmentPool(0)
	vertex := VertexIdFromUint64(0, 1)
	tcl := newLocalThreadLog(pool, vertex, nil)

	const epoch EpochId = 42
	for _, v := range []uint32{7, 11, 13} {
		if err := tcl.appendDeterminant(RNG(v), epoch); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	const consumer ConsumerId = 1
	delta, err := tcl.getNextDeterminantsForDownstream(consumer, epoch)
	if err != nil {
		t.Fatalf("getNextDeterminantsForDownstream: %v", err)
	}
	want := append(append(EncodeDeterminant(RNG(7)), EncodeDeterminant(RNG(11))...), EncodeDeterminant(RNG(13))...)
	if !bytes.Equal(delta.Bytes, want) {
		t.Fatalf("expected %x, got %x", want, delta.Bytes)
	}
	if len(want) != 15 {
		t.Fatalf("expected the scenario's 15-byte concatenation, got %d", len(want))
	}

	again, err := tcl.getNextDeterminantsForDownstream(consumer, epoch)
	if err != nil {
		t.Fatalf("second getNextDeterminantsForDownstream: %v", err)
	}
	if len(again.Bytes) != 0 {
		t.Fatalf("expected an empty delta on the second read, got %x", again.Bytes)
	}
}

// Scenario 2 (spec §8): epoch rollover and reclamation.
func TestLocalThreadLogRolloverAndReclamation(t *testing.T) {
	pool := newSegmentPool(0)
	vertex := VertexIdFromUint64(0, 1)
	tcl := newLocalThreadLog(pool, vertex, nil)

	if err := tcl.appendDeterminant(RNG(1), 1); err != nil {
		t.Fatal(err)
	}
	tcl.notifyCheckpointComplete(1) // no-op: no slice older than epoch 1
	if err := tcl.appendDeterminant(RNG(2), 2); err != nil {
		t.Fatal(err)
	}
	if err := tcl.appendDeterminant(RNG(3), 3); err != nil {
		t.Fatal(err)
	}

	tcl.notifyCheckpointComplete(2)
	if got := len(tcl.log.slices); got != 2 {
		t.Fatalf("expected epoch-2 and epoch-3 slices to remain, got %d slices", got)
	}
	if tcl.log.slices[0].id != 2 || tcl.log.slices[1].id != 3 {
		t.Fatalf("unexpected retained epoch ids: %v", []EpochId{tcl.log.slices[0].id, tcl.log.slices[1].id})
	}

	const consumer ConsumerId = 1
	delta, err := tcl.getNextDeterminantsForDownstream(consumer, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(delta.Bytes, EncodeDeterminant(RNG(3))) {
		t.Fatalf("expected RNG(3)'s encoding, got %x", delta.Bytes)
	}
}

func TestLocalThreadLogDownstreamFailureResetsCursor(t *testing.T) {
	pool := newSegmentPool(0)
	vertex := VertexIdFromUint64(0, 1)
	tcl := newLocalThreadLog(pool, vertex, nil)

	for id := EpochId(1); id <= 7; id++ {
		if err := tcl.appendDeterminant(RNG(uint32(id)), id); err != nil {
			t.Fatal(err)
		}
	}
	tcl.notifyCheckpointComplete(5) // retains epochs 5,6,7

	const consumer ConsumerId = 9
	if _, err := tcl.getNextDeterminantsForDownstream(consumer, 7); err != nil {
		t.Fatal(err)
	}

	tcl.notifyDownstreamFailure(consumer)
	earliest := tcl.log.oldest().id
	if earliest != 5 {
		t.Fatalf("expected earliest retained epoch 5, got %d", earliest)
	}
	delta, err := tcl.getNextDeterminantsForDownstream(consumer, earliest)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(delta.Bytes, EncodeDeterminant(RNG(5))) {
		t.Fatalf("expected replay to restart from epoch 5's determinant, got %x", delta.Bytes)
	}
}
