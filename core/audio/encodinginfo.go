package audio

import "time"

const (
	DefaultSampleRate = 16000
	DefaultFormat     = "linear16"

	// DefaultSpeechSampleRate is the rate synthesized speech is requested at.
	DefaultSpeechSampleRate = 24000
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: encodingFormat(DefaultFormat)}
}

// GetSpeechEncodingInfo returns the encoding used for synthesized speech
// playback: mono linear16 at the given rate.
func GetSpeechEncodingInfo(sampleRate int) EncodingInfo {
	if sampleRate <= 0 {
		sampleRate = DefaultSpeechSampleRate
	}
	return EncodingInfo{SampleRate: sampleRate, Format: EncodingLinear16}
}

type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

func (e EncodingInfo) SilenceValue() byte {
	switch e.Format {
	case EncodingALaw:
		return 0x55
	case EncodingMulaw:
		return 0xFF
	case EncodingLinear16:
		return 0
	}

	return 0
}

// Duration is the playback length of n bytes of mono audio in this encoding.
func (e EncodingInfo) Duration(n int) time.Duration {
	bytesPerSecond := e.SampleRate * e.Format.ByteSize()
	if bytesPerSecond <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bytesPerSecond)
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}

// PCMName is the name speech services use for the format on the wire.
func (e encodingFormat) PCMName() string {
	switch e {
	case EncodingLinear16:
		return "pcm_s16le"
	case EncodingMulaw:
		return "pcm_mulaw"
	case EncodingALaw:
		return "pcm_alaw"
	}
	return ""
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)
