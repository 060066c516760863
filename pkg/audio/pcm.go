package audio

import "encoding/binary"

// Downmix averages interleaved channels into mono samples
func Downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out
	}

	mono := make([]int16, len(samples)/channels)
	for i := range mono {
		var sum int32
		for ch := 0; ch < channels; ch++ {
			sum += int32(samples[i*channels+ch])
		}
		mono[i] = int16(sum / int32(channels))
	}
	return mono
}

// Resample converts mono samples between rates using linear interpolation
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	output := make([]int16, int(float64(len(samples))/ratio))

	for i := range output {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := srcPos - float64(idx)

		next := idx + 1
		if next >= len(samples) {
			next = len(samples) - 1
		}
		output[i] = int16(float64(samples[idx])*(1-frac) + float64(samples[next])*frac)
	}

	return output
}

// Bytes encodes samples as little-endian int16 PCM
func Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Converter turns decoded peer audio into the mono PCM a recognizer expects
type Converter struct {
	Channels   int
	InputRate  int
	OutputRate int
}

// Convert downmixes, resamples and encodes one decoded frame
func (c Converter) Convert(samples []int16) []byte {
	mono := Downmix(samples, c.Channels)
	return Bytes(Resample(mono, c.InputRate, c.OutputRate))
}
