package wire

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeH264Frame(t *testing.T) {
	payload := []byte{0xAA, 0xBB, 0xCC}
	frame := EncodeH264Frame(true, 123456, payload)

	env, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Tag != TagH264KeyUnit {
		t.Errorf("tag = 0x%02x, want 0x%02x", env.Tag, TagH264KeyUnit)
	}
	if env.Timestamp != 123456 {
		t.Errorf("timestamp = %d, want 123456", env.Timestamp)
	}
	if !bytes.Equal(env.Payload, payload) {
		t.Errorf("payload = %v, want %v", env.Payload, payload)
	}
}

func TestEncodeDecodeH264Delta(t *testing.T) {
	frame := EncodeH264Frame(false, 1, []byte{0x01})
	env, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Tag != TagH264Delta {
		t.Errorf("tag = 0x%02x, want delta 0x%02x", env.Tag, TagH264Delta)
	}
}

func TestEncodeH264ConfigExtractsProfileCompatLevel(t *testing.T) {
	// NAL header byte, then profile=0x64, compat=0x00, level=0x1f, then rest of SPS.
	sps := []byte{0x67, 0x64, 0x00, 0x1f, 0xAC, 0xD9}
	frame, err := EncodeH264Config(sps)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	env, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Tag != TagH264Config {
		t.Fatalf("tag = 0x%02x, want 0x%02x", env.Tag, TagH264Config)
	}
	if env.Profile != 0x64 || env.Compat != 0x00 || env.Level != 0x1f {
		t.Errorf("profile/compat/level = %x/%x/%x, want 64/00/1f", env.Profile, env.Compat, env.Level)
	}
	if !bytes.Equal(env.Payload, sps) {
		t.Errorf("payload = %v, want original sps bundle %v", env.Payload, sps)
	}
}

func TestEncodeH264ConfigTooShort(t *testing.T) {
	if _, err := EncodeH264Config([]byte{0x67}); err == nil {
		t.Fatal("expected error for too-short SPS")
	}
}

func TestEncodeDecodeAACFrame(t *testing.T) {
	frame := EncodeAACFrame(99, []byte{0x1, 0x2})
	env, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Tag != TagAACFrame || env.Timestamp != 99 {
		t.Errorf("env = %+v", env)
	}
}

func TestEncodeDecodeAACConfig(t *testing.T) {
	asc := []byte{0x12, 0x10}
	frame := EncodeAACConfig(asc)
	env, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Tag != TagAACConfig || !bytes.Equal(env.Payload, asc) {
		t.Errorf("env = %+v", env)
	}
}

func TestEncodeLegacyTags(t *testing.T) {
	h264 := EncodeLegacyH264([]byte{0xDE})
	if h264[0] != TagLegacyH264 {
		t.Errorf("legacy h264 tag = 0x%02x", h264[0])
	}
	aac := EncodeLegacyAAC([]byte{0xAD})
	if aac[0] != TagLegacyAAC {
		t.Errorf("legacy aac tag = 0x%02x", aac[0])
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	if _, err := Decode([]byte{0xFF}); err == nil {
		t.Fatal("expected error for unknown tag")
	}
}

func TestDecodeEmptyFrame(t *testing.T) {
	if _, err := Decode(nil); err == nil {
		t.Fatal("expected error for empty frame")
	}
}
