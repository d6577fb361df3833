package session

import (
	"testing"

	"github.com/simba-remote/gateway/internal/logging"
)

func newTestSession() *Session {
	return &Session{
		SCID:   "deadbeef",
		log:    logging.New("test", logging.LevelSilent),
		phase:  PhaseProvisioning,
		cancel: func() {},
	}
}

func TestSetDimensionsReportsChange(t *testing.T) {
	s := newTestSession()
	if changed := s.SetDimensions(1080, 2400); !changed {
		t.Error("first dimension set should report changed")
	}
	if changed := s.SetDimensions(1080, 2400); changed {
		t.Error("unchanged dimensions should not report changed")
	}
	if changed := s.SetDimensions(1080, 2340); !changed {
		t.Error("height-only change should report changed")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s := newTestSession()
	closedCount := 0
	s.onClose = func(*Session) { closedCount++ }

	s.Close()
	s.Close()

	if closedCount != 1 {
		t.Errorf("onClose called %d times, want 1", closedCount)
	}
	if s.Phase() != PhaseClosed {
		t.Errorf("phase = %v, want Closed", s.Phase())
	}
}

func TestLastSPSRoundTrip(t *testing.T) {
	s := newTestSession()
	sps := []byte{0x67, 0x01, 0x02}
	s.SetLastSPS(sps)
	got := s.LastSPS()
	if len(got) != len(sps) {
		t.Fatalf("got %v, want %v", got, sps)
	}
	// Mutate caller's copy: must not affect stored value.
	sps[0] = 0xFF
	if s.LastSPS()[0] == 0xFF {
		t.Error("LastSPS should have stored a defensive copy")
	}
}
