package speech

import (
	"bytes"
	"encoding/binary"
)

const (
	ulawBias = 0x84
	// ulawClip is the largest magnitude G.711 mu-law can represent.
	ulawClip = 32124

	wavHeaderSize = 44
)

var ulawTable = func() (t [256]int16) {
	for i := range t {
		t[i] = decodeUlaw(byte(i))
	}
	return t
}()

func decodeUlaw(b byte) int16 {
	u := ^b
	sign := u & 0x80
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F

	magnitude := ((int32(mantissa) << 3) + ulawBias) << exponent
	magnitude -= ulawBias
	if magnitude > ulawClip {
		magnitude = ulawClip
	}
	if sign != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}

// DecodeMulaw converts 8-bit mu-law samples to 16-bit little-endian PCM.
func DecodeMulaw(src []byte) []byte {
	out := make([]byte, len(src)*2)
	for i, b := range src {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(ulawTable[b]))
	}
	return out
}

// WAVHeader builds the 44-byte RIFF header for a PCM payload of dataLen bytes.
func WAVHeader(dataLen, sampleRate, channels, bitsPerSample int) []byte {
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	h := make([]byte, wavHeaderSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(36+dataLen))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:36], uint16(bitsPerSample))
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(dataLen))
	return h
}

// MulawToWAV decodes mono mu-law audio and wraps it as a 16-bit PCM WAV file.
func MulawToWAV(src []byte, sampleRate int) []byte {
	pcm := DecodeMulaw(src)
	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(pcm))
	buf.Write(WAVHeader(len(pcm), sampleRate, 1, 16))
	buf.Write(pcm)
	return buf.Bytes()
}

// IsWAV reports whether b starts with a RIFF/WAVE header.
func IsWAV(b []byte) bool {
	return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WAVE"
}
