// Package audio provides wire-format detection and codec conversion for
// call audio. Conversion shells out to ffmpeg; detection is pure byte
// sniffing.
package audio

import (
	"bytes"
)

// Format identifies an audio wire format.
type Format string

const (
	// FormatWebM is the browser container (EBML magic).
	FormatWebM Format = "webm"

	// FormatMuLaw is raw 8-bit companded telephony audio at 8kHz.
	FormatMuLaw Format = "mulaw"

	// FormatWAV is PCM in a RIFF/WAVE container, the canonical
	// representation (16-bit, mono, 16kHz) used by the speech engine.
	FormatWAV Format = "wav"

	FormatUnknown Format = "unknown"
)

var (
	ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}
	riffMagic = []byte("RIFF")
	waveMagic = []byte("WAVE")
)

// DetectFormat sniffs the wire format of an audio payload.
//
// WebM is identified by its 4-byte EBML magic, WAV by the RIFF/WAVE
// header. μ-law carries no header at all, so it is recognized by
// elimination plus a byte-distribution check: companded speech has the
// sign bit set on roughly half its samples, which plain text and most
// structured payloads never do.
func DetectFormat(data []byte) Format {
	if len(data) < 4 {
		return FormatUnknown
	}

	if bytes.HasPrefix(data, ebmlMagic) {
		return FormatWebM
	}
	if bytes.HasPrefix(data, riffMagic) &&
		len(data) >= 12 && bytes.Equal(data[8:12], waveMagic) {
		return FormatWAV
	}

	if looksCompanded(data) {
		return FormatMuLaw
	}
	return FormatUnknown
}

// looksCompanded samples the head of the payload and checks whether
// enough bytes have the μ-law sign bit set.
func looksCompanded(data []byte) bool {
	n := len(data)
	if n > 100 {
		n = 100
	}
	signed := 0
	for _, b := range data[:n] {
		if b&0x80 != 0 {
			signed++
		}
	}
	return signed*4 >= n
}

// minWAVSize is the RIFF header floor: any output smaller than this
// cannot be a valid container and indicates a failed conversion.
const minWAVSize = 44
