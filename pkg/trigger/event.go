package trigger

import (
	"encoding/json"
	"fmt"
)

// BeginSentinel is the textual form of a Begin event, kept for consumers
// that compare events as strings.
const BeginSentinel = "START_RECOGNITION_EVENT"

// Kind identifies the variant of an Event
type Kind int

const (
	KindBegin Kind = iota
	KindWord
	KindComplete
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindBegin:
		return "begin"
	case KindWord:
		return "word"
	case KindComplete:
		return "complete"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is emitted by a Gate to its subscriber
type Event struct {
	Kind Kind
	Text string // set for KindWord
	Err  error  // set for KindError
}

// Begin marks the trigger word being recognized.
func Begin() Event { return Event{Kind: KindBegin} }

// Word carries one recognized word or phrase while capturing.
func Word(text string) Event { return Event{Kind: KindWord, Text: text} }

// Complete marks the end of the utterance.
func Complete() Event { return Event{Kind: KindComplete} }

// Failure carries an engine error.
func Failure(err error) Event { return Event{Kind: KindError, Err: err} }

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Kind == KindComplete || e.Kind == KindError
}

func (e Event) String() string {
	switch e.Kind {
	case KindBegin:
		return BeginSentinel
	case KindWord:
		return e.Text
	case KindError:
		if e.Err == nil {
			return "error"
		}
		return "error: " + e.Err.Error()
	default:
		return e.Kind.String()
	}
}

type eventJSON struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// MarshalJSON encodes the event for room peers.
func (e Event) MarshalJSON() ([]byte, error) {
	out := eventJSON{Type: e.Kind.String(), Text: e.Text}
	if e.Err != nil {
		out.Error = e.Err.Error()
	}
	return json.Marshal(out)
}
