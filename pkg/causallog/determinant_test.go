package causallog

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"
)

func TestDeterminantRoundTrip(t *testing.T) {
	cases := []Determinant{
		RNG(7),
		RNG(0xFFFFFFFF),
		SerializableTimer(1700000000, 42),
		BufferEvent(99, 3),
		SourceCheckpointDeterminant(12345),
		RawDeterminant([]byte{0xDE, 0xAD, 0xBE, 0xEF}),
		RawDeterminant(nil),
	}
	for _, d := range cases {
		encoded := EncodeDeterminant(d)
		decoded, err := DecodeDeterminant(encoded)
		if err != nil {
			t.Fatalf("decode(encode(%v)) failed: %v\nbuf: %s", d, err, spew.Sdump(encoded))
		}
		if diff := cmp.Diff(d, decoded); diff != "" {
			t.Fatalf("round-trip mismatch (-want +got):\n%s\ndump: %s", diff, spew.Sdump(d, decoded))
		}
	}
}

func TestDeterminantRNGWireShape(t *testing.T) {
	// Scenario 1 (spec §8): RNG determinants encode as {tag=0x01, 4-byte int}.
	b := EncodeDeterminant(RNG(7))
	if len(b) != 5 {
		t.Fatalf("expected a 5-byte encoding, got %d bytes: %x", len(b), b)
	}
	if b[0] != byte(KindRNG) {
		t.Fatalf("expected tag 0x%02x, got 0x%02x", KindRNG, b[0])
	}
}

func TestDecodeDeterminantUnknownTag(t *testing.T) {
	_, err := DecodeDeterminant([]byte{0xFF})
	if err == nil {
		t.Fatal("expected an EncodingError for an unrecognized tag")
	}
	var encErr *EncodingError
	if !asEncodingError(err, &encErr) {
		t.Fatalf("expected *EncodingError, got %T: %v", err, err)
	}
}

func asEncodingError(err error, target **EncodingError) bool {
	e, ok := err.(*EncodingError)
	if ok {
		*target = e
	}
	return ok
}
