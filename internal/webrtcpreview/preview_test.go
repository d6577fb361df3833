package webrtcpreview

import "testing"

func TestPtsToRTPTimestampConvertsMicrosecondsTo90kHzClock(t *testing.T) {
	cases := []struct {
		pts  uint64
		want uint32
	}{
		{0, 0},
		{1_000_000, 90000},  // exactly one second
		{500_000, 45000},    // half a second
		{33_333, 2999},      // ~one frame at 30fps, truncated
	}
	for _, c := range cases {
		if got := ptsToRTPTimestamp(c.pts); got != c.want {
			t.Errorf("ptsToRTPTimestamp(%d) = %d, want %d", c.pts, got, c.want)
		}
	}
}
