package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/simba-remote/gateway/internal/apperr"
)

func TestReadDummyByteOK(t *testing.T) {
	if err := ReadDummyByte(bytes.NewReader([]byte{0x00})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReadDummyByteEOF(t *testing.T) {
	if err := ReadDummyByte(bytes.NewReader(nil)); err == nil {
		t.Fatal("expected error on empty reader")
	}
}

func TestReadDeviceNameTrimsPadding(t *testing.T) {
	buf := make([]byte, deviceNameLen)
	copy(buf, "Pixel 7")
	name, err := ReadDeviceName(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "Pixel 7" {
		t.Errorf("name = %q, want %q", name, "Pixel 7")
	}
}

func TestReadVideoCodecHeader(t *testing.T) {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[0:4], CodecH264)
	binary.BigEndian.PutUint32(buf[4:8], 1080)
	binary.BigEndian.PutUint32(buf[8:12], 2400)

	codec, w, h, err := ReadVideoCodecHeader(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if codec != CodecH264 || w != 1080 || h != 2400 {
		t.Errorf("codec/w/h = %x/%d/%d", codec, w, h)
	}
	if err := CheckVideoCodec(codec); err != nil {
		t.Errorf("expected h264 to be accepted: %v", err)
	}
}

func TestCheckVideoCodecRejectsUnsupported(t *testing.T) {
	if err := CheckVideoCodec(CodecAV1); !errors.Is(err, apperr.ErrUnsupportedCodec) {
		t.Errorf("expected ErrUnsupportedCodec, got %v", err)
	}
}

func TestReadAudioCodecHeaderDisabledIsNotAnError(t *testing.T) {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, CodecDisabled)
	codec, err := ReadAudioCodecHeader(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	enabled, err := CheckAudioCodec(codec)
	if err != nil {
		t.Fatalf("disabled audio must not be an error: %v", err)
	}
	if enabled {
		t.Error("expected audio disabled")
	}
}

func TestCheckAudioCodecAcceptsAAC(t *testing.T) {
	enabled, err := CheckAudioCodec(CodecAAC)
	if err != nil || !enabled {
		t.Errorf("enabled=%v err=%v, want true/nil", enabled, err)
	}
}

func TestCheckAudioCodecRejectsUnsupported(t *testing.T) {
	if _, err := CheckAudioCodec(CodecOpus); !errors.Is(err, apperr.ErrUnsupportedCodec) {
		t.Errorf("expected ErrUnsupportedCodec, got %v", err)
	}
}
