package audio

import (
	"bytes"
	"encoding/binary"
)

// WAVHeaderSize is the size of the canonical RIFF/WAVE header that precedes
// PCM samples in simple WAV files.
const WAVHeaderSize = 44

// StripWAVHeader returns the PCM payload of a WAV buffer. When the buffer is
// a RIFF file with a locatable data chunk the chunk offset is used, otherwise
// the canonical fixed-size header is skipped. Buffers that are not RIFF are
// returned unchanged.
func StripWAVHeader(data []byte) []byte {
	if len(data) < 12 || !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return data
	}

	offset := 12
	for offset+8 <= len(data) {
		chunkID := data[offset : offset+4]
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		offset += 8
		if bytes.Equal(chunkID, []byte("data")) {
			end := offset + chunkSize
			// streamed WAVs often carry a placeholder size
			if chunkSize == 0 || end > len(data) || end < offset {
				end = len(data)
			}
			return data[offset:end]
		}
		offset += chunkSize + chunkSize%2
	}

	if len(data) <= WAVHeaderSize {
		return nil
	}
	return data[WAVHeaderSize:]
}

// WAVSampleRate reads the sample rate from the fmt chunk of a WAV buffer. It
// returns 0 when data is not a WAV file or has no fmt chunk.
func WAVSampleRate(data []byte) int {
	if len(data) < 12 || !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return 0
	}

	offset := 12
	for offset+8 <= len(data) {
		chunkID := data[offset : offset+4]
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		offset += 8
		if bytes.Equal(chunkID, []byte("fmt ")) {
			if offset+8 > len(data) {
				return 0
			}
			return int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		}
		if bytes.Equal(chunkID, []byte("data")) || chunkSize < 0 {
			return 0
		}
		offset += chunkSize + chunkSize%2
	}
	return 0
}
