// Package trigger gates a recognition stream behind a spoken trigger word.
//
// A Gate stays Idle until the engine recognizes the trigger word, emits
// Begin, then forwards every recognized word until the utterance ends.
package trigger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"example.com/trigger_bridge/pkg/hypothesis"
	"example.com/trigger_bridge/pkg/stt"
)

var (
	ErrEmptyTriggerWord  = errors.New("trigger word cannot be empty")
	ErrNilSink           = errors.New("sink is nil")
	ErrAlreadySubscribed = errors.New("gate already has a subscriber")

	// ErrNilHypothesis is the panic value of OnResult called without a payload.
	ErrNilHypothesis = errors.New("result callback invoked without a hypothesis")

	// ErrUnspecifiedEngineFailure replaces a nil cause passed to OnError.
	ErrUnspecifiedEngineFailure = errors.New("speech engine reported an unspecified failure")
)

// State of a Gate
type State int

const (
	Idle State = iota
	Capturing
)

func (s State) String() string {
	if s == Capturing {
		return "capturing"
	}
	return "idle"
}

// CompletePolicy decides whether finalize and timeout signals end the
// stream while the gate is still Idle.
type CompletePolicy int

const (
	// CompleteAlways emits Complete on finalize and timeout from any state.
	CompleteAlways CompletePolicy = iota

	// CompleteFromCapturing emits Complete only when leaving Capturing.
	// Finalize and timeout in Idle leave the gate armed.
	CompleteFromCapturing
)

// ParseCompletePolicy maps a configuration value to a policy.
func ParseCompletePolicy(s string) (CompletePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "always":
		return CompleteAlways, nil
	case "capturing":
		return CompleteFromCapturing, nil
	default:
		return CompleteAlways, fmt.Errorf("unknown complete policy: %s", s)
	}
}

func (p CompletePolicy) String() string {
	if p == CompleteFromCapturing {
		return "capturing"
	}
	return "always"
}

// Option configures a Gate
type Option func(*Gate)

// WithLogger sets the logger used for anomalies and transitions.
func WithLogger(logger *log.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithCompletePolicy sets the idle completion policy.
func WithCompletePolicy(p CompletePolicy) Option {
	return func(g *Gate) { g.policy = p }
}

// Gate is the trigger-word state machine. It implements stt.Listener and
// must be driven by one engine at a time.
type Gate struct {
	triggerWord string
	policy      CompletePolicy
	logger      *log.Logger
	extractor   *hypothesis.Extractor

	sink       Sink
	state      State
	terminated bool
}

var _ stt.Listener = (*Gate)(nil)

// ValidateTriggerWord returns the normalized trigger word or
// ErrEmptyTriggerWord.
func ValidateTriggerWord(word string) (string, error) {
	word = strings.TrimSpace(word)
	if word == "" {
		return "", ErrEmptyTriggerWord
	}
	return word, nil
}

// New creates an Idle gate armed with triggerWord.
func New(triggerWord string, opts ...Option) (*Gate, error) {
	word, err := ValidateTriggerWord(triggerWord)
	if err != nil {
		return nil, err
	}

	g := &Gate{
		triggerWord: word,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.extractor = hypothesis.New(g.logger)
	return g, nil
}

// Subscribe registers the only consumer of the gate's events.
func (g *Gate) Subscribe(sink Sink) error {
	if sink == nil {
		return ErrNilSink
	}
	if g.sink != nil {
		return ErrAlreadySubscribed
	}
	g.sink = sink
	return nil
}

// State returns the current state.
func (g *Gate) State() State { return g.state }

// Terminated reports whether Complete or Error was emitted.
func (g *Gate) Terminated() bool { return g.terminated }

// TriggerWord returns the word that starts capturing.
func (g *Gate) TriggerWord() string { return g.triggerWord }

// OnPartialResult ignores intermediate hypotheses.
func (g *Gate) OnPartialResult(stt.Hypothesis) {}

// OnResult extracts the recognized word and advances the state machine.
// It panics with ErrNilHypothesis when called without a payload.
func (g *Gate) OnResult(h stt.Hypothesis) {
	if h == nil {
		panic(ErrNilHypothesis)
	}
	if !g.accepting() {
		return
	}
	word, ok := g.extractor.Extract(h)
	g.handleWord(word, ok)
}

// OnFinalResult ends the utterance; the payload is not inspected.
func (g *Gate) OnFinalResult(stt.Hypothesis) {
	if !g.accepting() {
		return
	}
	g.stop("final result")
}

// OnTimeout ends the utterance.
func (g *Gate) OnTimeout() {
	if !g.accepting() {
		return
	}
	g.stop("timeout")
}

// OnError ends the stream with err.
func (g *Gate) OnError(err error) {
	if !g.accepting() {
		return
	}
	if err == nil {
		err = ErrUnspecifiedEngineFailure
	}
	g.logger.Debug("engine error", "err", err, "state", g.state)
	g.terminated = true
	g.sink.Error(err)
}

func (g *Gate) accepting() bool {
	if g.sink == nil {
		g.logger.Warn("callback before subscription, dropped")
		return false
	}
	if g.terminated || g.sink.Cancelled() {
		return false
	}
	return true
}

func (g *Gate) handleWord(word string, ok bool) {
	if !ok {
		if g.state == Capturing {
			// no new words from the user, the utterance is over
			g.stop("empty result")
		}
		return
	}

	switch {
	case g.state == Capturing:
		g.sink.Next(Word(word))
	case strings.EqualFold(word, g.triggerWord):
		g.logger.Debug("trigger word recognized", "word", word)
		g.state = Capturing
		g.sink.Next(Begin())
	}
}

func (g *Gate) stop(reason string) {
	if g.state == Idle && g.policy == CompleteFromCapturing {
		g.logger.Debug("ignoring end of utterance while idle", "reason", reason)
		return
	}
	g.logger.Debug("recognition complete", "reason", reason, "state", g.state)
	g.state = Idle
	g.terminated = true
	g.sink.Complete()
}
