package media

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/simba-remote/gateway/internal/logging"
	"github.com/simba-remote/gateway/internal/wire"
)

type fakeSink struct {
	binaries  [][]byte
	events    []string
	buffered  int
}

func (f *fakeSink) WriteBinary(frame []byte) error {
	cp := append([]byte(nil), frame...)
	f.binaries = append(f.binaries, cp)
	return nil
}

func (f *fakeSink) WriteJSON(event string, payload any) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeSink) BufferedBytes() int { return f.buffered }

func unitBytes(t *testing.T, u wire.Unit) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := wire.WriteUnit(&buf, u); err != nil {
		t.Fatalf("WriteUnit: %v", err)
	}
	return buf.Bytes()
}

func TestPumpVideoConfigEmitsResolutionChangeOnce(t *testing.T) {
	sink := &fakeSink{}
	sps := buildTestSPS()
	config := append([]byte{0, 0, 0, 1}, sps...)

	var stream bytes.Buffer
	stream.Write(unitBytes(t, wire.Unit{IsConfig: true, Data: config}))
	stream.Write(unitBytes(t, wire.Unit{IsConfig: true, Data: config})) // same dims, no 2nd event

	p := New(KindVideo, &stream, sink, logging.New("test", logging.LevelSilent))
	err := p.Run()
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
	if len(sink.binaries) != 2 {
		t.Fatalf("expected 2 config envelopes, got %d", len(sink.binaries))
	}
	// If the SPS fixture parses (it is a real High-profile SPS), the
	// second identical config must not re-emit resolutionChange.
	if len(sink.events) > 1 {
		t.Errorf("resolutionChange emitted %d times for an unchanged SPS, want at most 1", len(sink.events))
	}
	if sink.binaries[0][0] != wire.TagH264Config {
		t.Errorf("first byte = %#x, want TagH264Config", sink.binaries[0][0])
	}
}

func TestPumpVideoDropsDeltaFramesOverBackpressureButKeepsKeyframes(t *testing.T) {
	sink := &fakeSink{buffered: MaxClientBufferBytes + 1}
	var stream bytes.Buffer
	stream.Write(unitBytes(t, wire.Unit{KeyFrame: false, PTS: 1, Data: []byte{0x41, 2, 3}})) // non-IDR slice
	stream.Write(unitBytes(t, wire.Unit{KeyFrame: true, PTS: 2, Data: []byte{0x65, 5, 6}}))  // IDR slice

	p := New(KindVideo, &stream, sink, logging.New("test", logging.LevelSilent))
	_ = p.Run()

	if len(sink.binaries) != 1 {
		t.Fatalf("expected only the keyframe to survive back-pressure, got %d frames", len(sink.binaries))
	}
	if sink.binaries[0][0] != wire.TagH264KeyUnit {
		t.Errorf("surviving frame tag = %#x, want TagH264KeyUnit", sink.binaries[0][0])
	}
}

func TestPumpAudioNeverDropsConfig(t *testing.T) {
	sink := &fakeSink{buffered: MaxClientBufferBytes + 1}
	var stream bytes.Buffer
	stream.Write(unitBytes(t, wire.Unit{IsConfig: true, Data: []byte{0x11, 0x90}}))
	stream.Write(unitBytes(t, wire.Unit{PTS: 5, Data: []byte{1, 2, 3}}))

	p := New(KindAudio, &stream, sink, logging.New("test", logging.LevelSilent))
	_ = p.Run()

	if len(sink.binaries) != 1 {
		t.Fatalf("expected only config to survive, got %d frames", len(sink.binaries))
	}
	if sink.binaries[0][0] != wire.TagAACConfig {
		t.Errorf("surviving frame tag = %#x, want TagAACConfig", sink.binaries[0][0])
	}
}

func TestPumpZeroLengthUnitSkipsWithoutError(t *testing.T) {
	sink := &fakeSink{}
	var stream bytes.Buffer
	stream.Write(unitBytes(t, wire.Unit{PTS: 1, Data: nil}))
	stream.Write(unitBytes(t, wire.Unit{PTS: 2, Data: []byte{9}}))

	p := New(KindVideo, &stream, sink, logging.New("test", logging.LevelSilent))
	err := p.Run()
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
	if len(sink.binaries) != 1 {
		t.Fatalf("expected the zero-length unit to be skipped, got %d frames", len(sink.binaries))
	}
}

type fakeRTPObserver struct {
	nalus [][]byte
	key   []bool
}

func (f *fakeRTPObserver) WriteNALU(nalu []byte, keyFrame bool, pts uint64) {
	f.nalus = append(f.nalus, append([]byte(nil), nalu...))
	f.key = append(f.key, keyFrame)
}

func TestPumpForwardsVideoFramesToRTPObserverAlongsideSink(t *testing.T) {
	sink := &fakeSink{}
	obs := &fakeRTPObserver{}
	var stream bytes.Buffer
	stream.Write(unitBytes(t, wire.Unit{KeyFrame: true, PTS: 1, Data: []byte{0x65, 7, 7}}))  // IDR slice
	stream.Write(unitBytes(t, wire.Unit{KeyFrame: false, PTS: 2, Data: []byte{0x41, 8, 8}})) // non-IDR slice

	p := New(KindVideo, &stream, sink, logging.New("test", logging.LevelSilent))
	p.SetRTPObserver(obs)
	_ = p.Run()

	if len(sink.binaries) != 2 {
		t.Fatalf("expected both frames delivered to the normal sink, got %d", len(sink.binaries))
	}
	if len(obs.nalus) != 2 {
		t.Fatalf("expected both frames also forwarded to the RTP observer, got %d", len(obs.nalus))
	}
	if !obs.key[0] || obs.key[1] {
		t.Errorf("keyframe flags forwarded incorrectly: %v", obs.key)
	}
}

func TestPumpWithProbeNotifiesBothObserverSlots(t *testing.T) {
	sink := &fakeSink{}
	probe := &fakeRTPObserver{}
	rtp := &fakeRTPObserver{}
	var stream bytes.Buffer
	stream.Write(unitBytes(t, wire.Unit{KeyFrame: true, PTS: 1, Data: []byte{1, 2, 3}}))

	p := NewWithProbe(KindVideo, &stream, sink, probe, logging.New("test", logging.LevelSilent))
	p.SetRTPObserver(rtp)
	_ = p.Run()

	if len(probe.nalus) != 1 {
		t.Fatalf("expected the permanent probe to observe the frame, got %d calls", len(probe.nalus))
	}
	if len(rtp.nalus) != 1 {
		t.Fatalf("expected the swappable RTP observer to also observe the frame, got %d calls", len(rtp.nalus))
	}
}

// buildTestSPS returns a minimal but structurally valid H264 SPS NAL for a
// 1920x1080 picture, matching the field layout ParseSPSDimensions expects.
func buildTestSPS() []byte {
	// High profile (profile_idc 0x64), no scaling lists, frame (not field)
	// coded picture.
	return []byte{
		0x67, 0x64, 0x00, 0x28, 0xac, 0xd9, 0x40, 0x78,
		0x02, 0x27, 0xe5, 0xc0, 0x44, 0x00, 0x00, 0x03,
		0x00, 0x04, 0x00, 0x00, 0x03, 0x00, 0xf0, 0x3c,
		0x60, 0xc9, 0x20,
	}
}
