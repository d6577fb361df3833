package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// FrameHeaderSize is the size in bytes of the per-unit device frame header:
// pts:u64 BE, flags:u8, len:u32 BE.
const FrameHeaderSize = 8 + 1 + 4

// Unit is one video or audio access unit read off a device media socket.
type Unit struct {
	PTS      uint64
	IsConfig bool
	KeyFrame bool
	Data     []byte
}

// ReadUnit reads one framed unit from a device media socket. A unit of
// length 0 is reported via zeroLength=true; the caller drops it with a
// warning rather than treating it as a read error.
func ReadUnit(r io.Reader) (unit Unit, zeroLength bool, err error) {
	var hdr [FrameHeaderSize]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return Unit{}, false, fmt.Errorf("read frame header: %w", err)
	}
	pts := binary.BigEndian.Uint64(hdr[0:8])
	flags := hdr[8]
	length := binary.BigEndian.Uint32(hdr[9:13])

	unit = Unit{
		PTS:      pts,
		IsConfig: flags&FlagConfig != 0,
		KeyFrame: flags&FlagKeyFrame != 0,
	}
	if length == 0 {
		return unit, true, nil
	}
	unit.Data = make([]byte, length)
	if _, err = io.ReadFull(r, unit.Data); err != nil {
		return Unit{}, false, fmt.Errorf("read frame payload (%d bytes): %w", length, err)
	}
	return unit, false, nil
}

// WriteUnit writes a unit in the same wire format ReadUnit consumes. Used
// by tests exercising the round trip and by any loopback tooling.
func WriteUnit(w io.Writer, u Unit) error {
	hdr := make([]byte, FrameHeaderSize)
	binary.BigEndian.PutUint64(hdr[0:8], u.PTS)
	var flags uint8
	if u.IsConfig {
		flags |= FlagConfig
	}
	if u.KeyFrame {
		flags |= FlagKeyFrame
	}
	hdr[8] = flags
	binary.BigEndian.PutUint32(hdr[9:13], uint32(len(u.Data)))
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	_, err := w.Write(u.Data)
	return err
}
