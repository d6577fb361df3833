package wire

import (
	"encoding/binary"
	"fmt"
)

// Envelope tags sent to browser clients: type:u8 | [header] | payload.
const (
	TagLegacyH264  uint8 = 0x00
	TagLegacyAAC   uint8 = 0x01
	TagH264Config  uint8 = 0x10
	TagH264KeyUnit uint8 = 0x11
	TagH264Delta   uint8 = 0x12
	TagAACConfig   uint8 = 0x20
	TagAACFrame    uint8 = 0x21
)

// Envelope is a decoded client-facing frame, independent of which tag
// produced it; Profile/Compat/Level are only meaningful for TagH264Config
// and Timestamp only for the three timestamped tags.
type Envelope struct {
	Tag       uint8
	Profile   uint8
	Compat    uint8
	Level     uint8
	Timestamp uint64
	Payload   []byte
}

// EncodeH264Config builds a 0x10 envelope: profile/compat/level extracted
// from the SPS payload (bytes 1, 2, 3 after the one-byte NAL header) plus
// the raw SPS/PPS NAL bundle. The bundle may be a bare SPS or Annex-B with
// start codes; in the latter case the SPS NALU is located first.
func EncodeH264Config(spsPPS []byte) ([]byte, error) {
	sps := spsPPS
	for _, n := range SplitAnnexBNALUs(spsPPS) {
		if IsSPS(n) {
			sps = n
			break
		}
	}
	if len(sps) < 4 {
		return nil, fmt.Errorf("sps too short to extract profile/compat/level: %d bytes", len(sps))
	}
	out := make([]byte, 0, 4+len(spsPPS))
	out = append(out, TagH264Config, sps[1], sps[2], sps[3])
	out = append(out, spsPPS...)
	return out, nil
}

// EncodeH264Frame builds a 0x11 (IDR) or 0x12 (delta) envelope.
func EncodeH264Frame(isKeyFrame bool, ts uint64, payload []byte) []byte {
	tag := TagH264Delta
	if isKeyFrame {
		tag = TagH264KeyUnit
	}
	return encodeTimestamped(tag, ts, payload)
}

// EncodeAACConfig builds a 0x20 envelope carrying a raw AudioSpecificConfig.
func EncodeAACConfig(asc []byte) []byte {
	out := make([]byte, 0, 1+len(asc))
	out = append(out, TagAACConfig)
	return append(out, asc...)
}

// EncodeAACFrame builds a 0x21 envelope.
func EncodeAACFrame(ts uint64, payload []byte) []byte {
	return encodeTimestamped(TagAACFrame, ts, payload)
}

// EncodeLegacyH264 builds a 0x00 envelope for the pre-Android-11 server path.
func EncodeLegacyH264(payload []byte) []byte {
	out := make([]byte, 0, 1+len(payload))
	return append(append(out, TagLegacyH264), payload...)
}

// EncodeLegacyAAC builds a 0x01 envelope for the pre-Android-11 server path.
func EncodeLegacyAAC(payload []byte) []byte {
	out := make([]byte, 0, 1+len(payload))
	return append(append(out, TagLegacyAAC), payload...)
}

func encodeTimestamped(tag uint8, ts uint64, payload []byte) []byte {
	out := make([]byte, 9+len(payload))
	out[0] = tag
	binary.BigEndian.PutUint64(out[1:9], ts)
	copy(out[9:], payload)
	return out
}

// Decode parses any of the seven envelope shapes back into an Envelope,
// the inverse of the Encode* helpers above. Used by tests and by any
// client-side tooling sharing this package.
func Decode(frame []byte) (Envelope, error) {
	if len(frame) < 1 {
		return Envelope{}, fmt.Errorf("empty envelope frame")
	}
	tag := frame[0]
	switch tag {
	case TagLegacyH264, TagLegacyAAC, TagAACConfig:
		return Envelope{Tag: tag, Payload: frame[1:]}, nil
	case TagH264Config:
		if len(frame) < 4 {
			return Envelope{}, fmt.Errorf("h264 config envelope too short: %d bytes", len(frame))
		}
		return Envelope{Tag: tag, Profile: frame[1], Compat: frame[2], Level: frame[3], Payload: frame[4:]}, nil
	case TagH264KeyUnit, TagH264Delta, TagAACFrame:
		if len(frame) < 9 {
			return Envelope{}, fmt.Errorf("timestamped envelope too short: %d bytes", len(frame))
		}
		ts := binary.BigEndian.Uint64(frame[1:9])
		return Envelope{Tag: tag, Timestamp: ts, Payload: frame[9:]}, nil
	default:
		return Envelope{}, fmt.Errorf("unknown envelope tag: 0x%02x", tag)
	}
}
