package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestWriteReadUnitRoundTrip(t *testing.T) {
	u := Unit{PTS: 42, IsConfig: false, KeyFrame: true, Data: []byte{1, 2, 3, 4}}
	var buf bytes.Buffer
	if err := WriteUnit(&buf, u); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, zero, err := ReadUnit(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if zero {
		t.Fatal("unexpected zero-length unit")
	}
	if got.PTS != u.PTS || got.KeyFrame != u.KeyFrame || got.IsConfig != u.IsConfig {
		t.Errorf("got %+v, want %+v", got, u)
	}
	if !bytes.Equal(got.Data, u.Data) {
		t.Errorf("data = %v, want %v", got.Data, u.Data)
	}
}

func TestReadUnitZeroLengthIsNotAnError(t *testing.T) {
	u := Unit{PTS: 1, Data: nil}
	var buf bytes.Buffer
	if err := WriteUnit(&buf, u); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, zero, err := ReadUnit(&buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !zero {
		t.Fatal("expected zero-length unit to be flagged")
	}
}

func TestReadUnitShortHeaderIsError(t *testing.T) {
	_, _, err := ReadUnit(bytes.NewReader([]byte{1, 2, 3}))
	if err == nil {
		t.Fatal("expected error for truncated header")
	}
	if !bytes.Contains([]byte(err.Error()), []byte("read frame header")) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestReadUnitEOFPropagates(t *testing.T) {
	_, _, err := ReadUnit(bytes.NewReader(nil))
	if err == nil {
		t.Fatal("expected EOF-wrapping error")
	}
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected wrapped io.EOF, got %v", err)
	}
}
