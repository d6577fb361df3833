// Package wire implements the WireProtocol capability: the framing the
// on-device streaming server speaks, and the binary envelope framing the
// gateway re-emits to browser clients. Nothing here touches adb or
// WebSocket transport — see package adb and package gateway for those.
package wire

import "github.com/simba-remote/gateway/internal/apperr"

// Codec IDs as emitted in the device handshake's 32-bit big-endian fields.
// Only H264 and AAC are accepted payloads; the rest are recognized so they
// can be logged and rejected with ErrUnsupportedCodec instead of silently
// misparsed.
const (
	CodecH264     = uint32(0x68323634) // "h264"
	CodecH265     = uint32(0x68323635) // "h265"
	CodecAV1      = uint32(0x00617631) // "av1"
	CodecAAC      = uint32(0x00616163) // "aac"
	CodecOpus     = uint32(0x6f707573) // "opus"
	CodecFLAC     = uint32(0x666c6163) // "flac"
	CodecRAW      = uint32(0x00726177) // "raw"
	CodecDisabled = uint32(0x80000000) // audio stream not available
)

// PTSUnitsPerSecond is the scrcpy PTS tick rate (microseconds).
const PTSUnitsPerSecond = uint64(1_000_000)

// Per-unit frame header flag bits (spec.md §3's frame header: pts:u64 BE,
// flags:u8, len:u32 BE).
const (
	FlagConfig    uint8 = 0x80
	FlagKeyFrame  uint8 = 0x40
	deviceNameLen       = 64
)

// CodecName returns a short label for logging; unknown ids return "unknown".
func CodecName(id uint32) string {
	switch id {
	case CodecH264:
		return "h264"
	case CodecH265:
		return "h265"
	case CodecAV1:
		return "av1"
	case CodecAAC:
		return "aac"
	case CodecOpus:
		return "opus"
	case CodecFLAC:
		return "flac"
	case CodecRAW:
		return "raw"
	case CodecDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// CheckVideoCodec rejects anything but H264 for the video channel.
func CheckVideoCodec(id uint32) error {
	if id != CodecH264 {
		return apperr.ErrUnsupportedCodec
	}
	return nil
}

// CheckAudioCodec rejects anything but AAC or a "no audio" id (the
// "disabled" sentinel or zero) for the audio channel. No audio is not an
// error: the session simply runs without an audio stream.
func CheckAudioCodec(id uint32) (enabled bool, err error) {
	if id == CodecDisabled || id == 0 {
		return false, nil
	}
	if id != CodecAAC {
		return false, apperr.ErrUnsupportedCodec
	}
	return true, nil
}
