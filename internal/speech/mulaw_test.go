package speech

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/zaf/g711"
)

func TestDecodeMulawMatchesReferenceCodec(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}
	got := DecodeMulaw(all)
	want := g711.DecodeUlaw(all)
	if !bytes.Equal(got, want) {
		for i := 0; i < 256; i++ {
			g := int16(binary.LittleEndian.Uint16(got[i*2:]))
			w := g711.DecodeUlawFrame(uint8(i))
			if g != w {
				t.Fatalf("byte 0x%02x: got %d, want %d", i, g, w)
			}
		}
		t.Fatalf("decoded streams differ")
	}
}

func TestDecodeMulawKnownValues(t *testing.T) {
	cases := map[byte]int16{
		0xFF: 0,
		0x7F: 0,
		0x00: -32124,
		0x80: 32124,
	}
	for in, want := range cases {
		if got := decodeUlaw(in); got != want {
			t.Fatalf("decodeUlaw(0x%02x) = %d, want %d", in, got, want)
		}
	}
}

func TestWAVHeaderLayout(t *testing.T) {
	h := WAVHeader(1600, 8000, 1, 16)
	if len(h) != 44 {
		t.Fatalf("expected 44 bytes, got %d", len(h))
	}
	if string(h[0:4]) != "RIFF" || string(h[8:12]) != "WAVE" || string(h[12:16]) != "fmt " || string(h[36:40]) != "data" {
		t.Fatalf("bad chunk ids: %q", h)
	}
	checks := []struct {
		name string
		got  uint32
		want uint32
	}{
		{"riff size", binary.LittleEndian.Uint32(h[4:8]), 36 + 1600},
		{"fmt size", binary.LittleEndian.Uint32(h[16:20]), 16},
		{"format", uint32(binary.LittleEndian.Uint16(h[20:22])), 1},
		{"channels", uint32(binary.LittleEndian.Uint16(h[22:24])), 1},
		{"sample rate", binary.LittleEndian.Uint32(h[24:28]), 8000},
		{"byte rate", binary.LittleEndian.Uint32(h[28:32]), 16000},
		{"block align", uint32(binary.LittleEndian.Uint16(h[32:34])), 2},
		{"bits", uint32(binary.LittleEndian.Uint16(h[34:36])), 16},
		{"data size", binary.LittleEndian.Uint32(h[40:44]), 1600},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s: got %d, want %d", c.name, c.got, c.want)
		}
	}
}

func TestMulawToWAV(t *testing.T) {
	src := bytes.Repeat([]byte{0xFF, 0x00}, 400)
	wav := MulawToWAV(src, 8000)
	if !IsWAV(wav) {
		t.Fatalf("expected wav header")
	}
	if len(wav) != 44+len(src)*2 {
		t.Fatalf("unexpected length %d", len(wav))
	}
	if IsWAV(src) {
		t.Fatalf("raw mulaw must not look like wav")
	}
}
