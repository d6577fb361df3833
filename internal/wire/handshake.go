package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/simba-remote/gateway/internal/apperr"
)

// DeviceMeta is what the handshake phase learns from the video socket
// before the first frame arrives.
type DeviceMeta struct {
	Name   string
	Width  uint16
	Height uint16
}

// ReadDummyByte consumes the single 0x00 dummy byte that starts each
// device socket's handshake, confirming the connection is real; any other
// value fails with ErrHandshakeBadDummy.
func ReadDummyByte(r io.Reader) error {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return fmt.Errorf("read dummy byte: %w: %v", apperr.ErrHandshakeBadDummy, err)
	}
	if b[0] != 0 {
		return fmt.Errorf("read dummy byte: %w: got 0x%02x", apperr.ErrHandshakeBadDummy, b[0])
	}
	return nil
}

// ReadDeviceName reads the fixed 64-byte, NUL-padded device name record.
func ReadDeviceName(r io.Reader) (string, error) {
	buf := make([]byte, deviceNameLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read device name: %w: %v", apperr.ErrHandshakeTimeout, err)
	}
	return strings.TrimRight(string(buf), "\x00"), nil
}

// ReadVideoCodecHeader reads the video channel's codec id followed by its
// width/height, each a big-endian uint32. CheckVideoCodec is left to the
// caller so the raw id can still be logged on rejection.
func ReadVideoCodecHeader(r io.Reader) (codecID uint32, width, height uint16, err error) {
	var hdr [12]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return 0, 0, 0, fmt.Errorf("read video header: %w: %v", apperr.ErrHandshakeTimeout, err)
	}
	codecID = binary.BigEndian.Uint32(hdr[0:4])
	width = uint16(binary.BigEndian.Uint32(hdr[4:8]))
	height = uint16(binary.BigEndian.Uint32(hdr[8:12]))
	return codecID, width, height, nil
}

// ReadAudioCodecHeader reads the audio channel's codec id. A value of
// CodecDisabled means the server decided not to open an audio stream at
// all (no further bytes follow on that socket); the caller should close
// it without treating this as an error. A clean EOF before any bytes
// arrive means the same thing — the device closed the socket instead of
// writing CodecDisabled — and is reported as CodecDisabled rather than
// an error; only a short read partway through the header is a genuine
// handshake failure.
func ReadAudioCodecHeader(r io.Reader) (codecID uint32, err error) {
	var hdr [4]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return CodecDisabled, nil
		}
		return 0, fmt.Errorf("read audio header: %w: %v", apperr.ErrHandshakeTimeout, err)
	}
	return binary.BigEndian.Uint32(hdr[:]), nil
}
