package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var (
	ErrInvalidWAV     = errors.New("not a valid wav file")
	ErrUnsupportedWAV = errors.New("only 16-bit PCM wav files are supported")
)

// StreamWAV decodes a 16-bit PCM wav file and sends it to out as mono
// little-endian PCM at outputRate, one chunk per interval of audio. out is
// closed when the file ends, on error, or when ctx is done.
func StreamWAV(ctx context.Context, r io.ReadSeeker, outputRate int, interval time.Duration, out chan<- []byte) error {
	defer close(out)

	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return ErrInvalidWAV
	}
	if d.BitDepth != 16 {
		return fmt.Errorf("%w: got %d bits", ErrUnsupportedWAV, d.BitDepth)
	}

	channels := int(d.NumChans)
	rate := int(d.SampleRate)
	frames := int(time.Duration(rate) * interval / time.Second)
	if frames <= 0 {
		frames = rate / 10
	}

	conv := Converter{Channels: channels, InputRate: rate, OutputRate: outputRate}
	buf := &goaudio.IntBuffer{
		Data:   make([]int, frames*channels),
		Format: &goaudio.Format{NumChannels: channels, SampleRate: rate},
	}
	samples := make([]int16, len(buf.Data))

	for {
		n, err := d.PCMBuffer(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decoding wav: %w", err)
		}
		if n == 0 {
			return nil
		}

		for i, s := range buf.Data[:n] {
			samples[i] = int16(s)
		}
		select {
		case out <- conv.Convert(samples[:n]):
		case <-ctx.Done():
			return ctx.Err()
		}

		if err != nil {
			return nil
		}
	}
}
