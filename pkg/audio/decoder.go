package audio

import (
	"errors"

	"github.com/pion/rtp"
	"gopkg.in/hraban/opus.v2"
)

// ErrEmptyPayload is returned for RTP packets without audio
var ErrEmptyPayload = errors.New("empty rtp payload")

// OpusDecoder decodes Opus audio to PCM
type OpusDecoder struct {
	decoder    *opus.Decoder
	sampleRate int
	channels   int
	pcm        []int16
}

// NewOpusDecoder creates a new Opus decoder
func NewOpusDecoder(sampleRate, channels int) (*OpusDecoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, err
	}

	// Opus frames are at most 120ms, 5760 samples per channel at 48kHz
	return &OpusDecoder{
		decoder:    dec,
		sampleRate: sampleRate,
		channels:   channels,
		pcm:        make([]int16, 5760*channels),
	}, nil
}

// Decode decodes Opus data to interleaved PCM int16 samples. The returned
// slice is only valid until the next call.
func (d *OpusDecoder) Decode(opusData []byte) ([]int16, error) {
	n, err := d.decoder.Decode(opusData, d.pcm)
	if err != nil {
		return nil, err
	}
	return d.pcm[:n*d.channels], nil
}

// DecodePacket decodes the Opus payload of an RTP packet
func (d *OpusDecoder) DecodePacket(packet *rtp.Packet) ([]int16, error) {
	if packet == nil || len(packet.Payload) == 0 {
		return nil, ErrEmptyPayload
	}
	return d.Decode(packet.Payload)
}

// SampleRate returns the sample rate
func (d *OpusDecoder) SampleRate() int {
	return d.sampleRate
}

// Channels returns the number of channels
func (d *OpusDecoder) Channels() int {
	return d.channels
}
