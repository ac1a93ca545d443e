package edid

import (
	"errors"
	"testing"
)

func sampleBlock() []byte {
	b := make([]byte, 128)
	copy(b, header)
	// "DEL": D=4, E=5, L=12
	v := uint16(4)<<10 | uint16(5)<<5 | 12
	b[8], b[9] = byte(v>>8), byte(v)
	b[10], b[11] = 0x34, 0x12
	b[12] = 0x01
	b[21], b[22] = 60, 34

	name := b[72:90]
	name[3] = 0xfc
	copy(name[5:], "U2720Q\n     ")
	serial := b[90:108]
	serial[3] = 0xff
	copy(serial[5:], "ABC123\n")
	return b
}

func TestParse(t *testing.T) {
	info, err := Parse(sampleBlock())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if info.Make != "Dell" || info.Model != "U2720Q" || info.Serial != "ABC123" {
		t.Fatalf("unexpected identity %+v", info)
	}
	if info.WidthCM != 60 || info.HeightCM != 34 {
		t.Fatalf("unexpected size %dx%d", info.WidthCM, info.HeightCM)
	}
}

func TestParse_NumericFallbacks(t *testing.T) {
	b := sampleBlock()
	for i := 72; i < 108; i++ {
		b[i] = 0x01
	}
	info, err := Parse(b)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if info.Model != "0x1234" || info.Serial != "0x00000001" {
		t.Fatalf("expected numeric fallbacks, got %+v", info)
	}
}

func TestParse_Errors(t *testing.T) {
	if _, err := Parse(make([]byte, 10)); !errors.Is(err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
	if _, err := Parse(make([]byte, 128)); !errors.Is(err, ErrBadHeader) {
		t.Fatalf("expected ErrBadHeader, got %v", err)
	}
}
