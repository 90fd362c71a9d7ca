package deepgram

import (
	"fmt"
	"slices"

	"github.com/koscakluka/ema-agent/core/audio"
)

// streamEncoding is how captured audio is described to Deepgram in the
// listen query.
type streamEncoding struct {
	name       string
	sampleRate int
}

var (
	linearSampleRates    = []int{8000, 16000, 24000, 32000, 48000}
	telephonySampleRates = []int{8000}
)

var supportedEncodings = map[string][]int{
	audio.EncodingLinear16.Name(): linearSampleRates,
	audio.EncodingALaw.Name():     telephonySampleRates,
	audio.EncodingMulaw.Name():    telephonySampleRates,
}

func streamEncodingFor(encoding audio.EncodingInfo) (streamEncoding, error) {
	name := encoding.Format.Name()
	rates, ok := supportedEncodings[name]
	if !ok {
		return streamEncoding{}, fmt.Errorf("unsupported encoding %q", name)
	}
	if !slices.Contains(rates, encoding.SampleRate) {
		return streamEncoding{}, fmt.Errorf("unsupported sample rate %d for %s", encoding.SampleRate, name)
	}
	return streamEncoding{name: name, sampleRate: encoding.SampleRate}, nil
}
