// Package causallog implements the causal determinant logging core: a
// per-vertex record of non-deterministic execution choices, organized into
// checkpoint epochs, distributed between replicas so a standby can replay a
// failed task deterministically.
package causallog

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// VertexId is an opaque 128-bit identifier, stable for the job's lifetime.
type VertexId [16]byte

// NewVertexId draws a random 128-bit id.
func NewVertexId() VertexId {
	var id VertexId
	if _, err := rand.Read(id[:]); err != nil {
		panic(fmt.Sprintf("causallog: failed to read random vertex id: %v", err))
	}
	return id
}

// VertexIdFromUint64 packs two uint64s into a VertexId, big-endian, useful
// for deterministic ids in tests.
func VertexIdFromUint64(hi, lo uint64) VertexId {
	var id VertexId
	binary.BigEndian.PutUint64(id[0:8], hi)
	binary.BigEndian.PutUint64(id[8:16], lo)
	return id
}

func (v VertexId) String() string {
	return fmt.Sprintf("%x", [16]byte(v))
}

// ConsumerId identifies a downstream input channel. Created on registration,
// destroyed on unregistration or cancel.
type ConsumerId uint64

// EpochId is a monotonic, unsigned 64-bit checkpoint id issued by the
// checkpoint coordinator.
type EpochId uint64

// PartitionKey identifies an (output-partition, subpartition) pair, fixed at
// vertex construction.
type PartitionKey struct {
	Partition    VertexId
	Subpartition uint32
}

func (k PartitionKey) String() string {
	return fmt.Sprintf("%s/%d", k.Partition, k.Subpartition)
}

// less gives PartitionKey a total order so VertexLogDelta's subpartition map
// can be walked and serialized deterministically.
func (k PartitionKey) less(other PartitionKey) bool {
	for i := range k.Partition {
		if k.Partition[i] != other.Partition[i] {
			return k.Partition[i] < other.Partition[i]
		}
	}
	return k.Subpartition < other.Subpartition
}
