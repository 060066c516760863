package stt

import (
	"encoding/json"
	"errors"
	"net"
)

// ErrStreamClosed is reported through OnError when an engine ends the
// stream before it was asked to finish.
var ErrStreamClosed = errors.New("recognizer closed the stream")

// Hypothesis is one raw recognition result as delivered by an engine,
// usually a JSON object with a "text" field. A nil Hypothesis means the
// engine delivered no payload at all.
type Hypothesis []byte

// TextHypothesis wraps a plain transcript in the JSON shape produced by
// Vosk so text-only providers feed the same extraction path.
func TextHypothesis(text string) Hypothesis {
	b, _ := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: text})
	return b
}

// Listener receives recognition callbacks from an engine. Engines invoke
// the methods sequentially, never concurrently for one listener.
type Listener interface {
	// OnPartialResult is called with an intermediate hypothesis
	OnPartialResult(hypothesis Hypothesis)

	// OnResult is called when the engine settles on a hypothesis
	OnResult(hypothesis Hypothesis)

	// OnFinalResult is called when the engine finalizes the stream
	OnFinalResult(hypothesis Hypothesis)

	// OnTimeout is called when no result arrived in time
	OnTimeout()

	// OnError is called when recognition failed
	OnError(err error)
}

// Client defines the interface for speech-to-text providers
type Client interface {
	// Listen sets the callback target; it must be called before Connect
	Listen(listener Listener)

	// Connect establishes connection to the STT service
	Connect() error

	// SendAudio sends PCM audio data to the STT service
	SendAudio(pcmData []byte) error

	// Finish asks the service to flush and finalize the current stream
	Finish() error

	// Close closes the connection
	Close() error

	// IsConnected returns connection status
	IsConnected() bool
}

// Config holds common STT connection settings
type Config struct {
	APIKey     string
	SampleRate int // e.g., 16000
	Channels   int // e.g., 1 or 2
}

// IsTimeout reports whether err is a read deadline expiry.
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
