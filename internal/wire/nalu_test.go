package wire

import (
	"bytes"
	"testing"
)

func TestSplitAnnexBNALUs(t *testing.T) {
	stream := []byte{
		0, 0, 0, 1, 0x67, 0xAA, 0xBB, // SPS
		0, 0, 1, 0x68, 0xCC, // PPS
		0, 0, 1, 0x65, 0xDD, 0xEE, // IDR slice
	}
	nalus := SplitAnnexBNALUs(stream)
	if len(nalus) != 3 {
		t.Fatalf("got %d NALUs, want 3", len(nalus))
	}
	if !bytes.Equal(nalus[0], []byte{0x67, 0xAA, 0xBB}) {
		t.Errorf("nalu[0] = %v", nalus[0])
	}
	if NALUType(nalus[0]) != naluTypeSPS || !IsSPS(nalus[0]) {
		t.Errorf("nalu[0] type = %d, want SPS", NALUType(nalus[0]))
	}
	if !IsIDR(nalus[2]) {
		t.Errorf("nalu[2] should be IDR, type = %d", NALUType(nalus[2]))
	}
}

func TestSplitAnnexBNALUsEmpty(t *testing.T) {
	if nalus := SplitAnnexBNALUs(nil); len(nalus) != 0 {
		t.Errorf("got %d NALUs from empty input, want 0", len(nalus))
	}
}

func TestParseSPSDimensionsRejectsNonSPS(t *testing.T) {
	_, _, ok := ParseSPSDimensions([]byte{0x68, 0x00, 0x00, 0x00})
	if ok {
		t.Fatal("expected non-SPS NAL to be rejected")
	}
}

func TestParseSPSDimensionsRejectsShortInput(t *testing.T) {
	_, _, ok := ParseSPSDimensions([]byte{0x67})
	if ok {
		t.Fatal("expected too-short SPS to be rejected")
	}
}

func TestParseSPSDimensionsDoesNotPanicOnGarbage(t *testing.T) {
	garbage := []byte{0x67, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	_, _, _ = ParseSPSDimensions(garbage) // must not panic regardless of outcome
}
