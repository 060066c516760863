// Package agent runs trigger-word listening sessions for the audio of one
// peer. Each session owns a gate, a recognizer and an event stream; a new
// session is armed after every terminal event until the audio ends.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"example.com/trigger_bridge/pkg/stream"
	"example.com/trigger_bridge/pkg/stt"
	"example.com/trigger_bridge/pkg/trigger"
)

// Config holds session settings
type Config struct {
	TriggerWord   string
	Policy        trigger.CompletePolicy
	RetryDelay    time.Duration // pause before re-arming after an engine error
	FinishTimeout time.Duration // wait for the final result once audio ends
}

// RecognizerFactory returns a fresh, unconnected recognizer.
type RecognizerFactory func() stt.Client

// Publisher receives every event emitted for a peer.
type Publisher func(peerID string, event trigger.Event)

// Agent listens for the trigger word in peer audio
type Agent struct {
	cfg     Config
	factory RecognizerFactory
	publish Publisher
	logger  *log.Logger
}

// New creates an agent. publish may be nil.
func New(cfg Config, factory RecognizerFactory, publish Publisher, logger *log.Logger) (*Agent, error) {
	word, err := trigger.ValidateTriggerWord(cfg.TriggerWord)
	if err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, errors.New("recognizer factory is nil")
	}
	cfg.TriggerWord = word
	if cfg.FinishTimeout <= 0 {
		cfg.FinishTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	if publish == nil {
		publish = func(string, trigger.Event) {}
	}

	return &Agent{
		cfg:     cfg,
		factory: factory,
		publish: publish,
		logger:  logger.WithPrefix("agent"),
	}, nil
}

// Listen feeds pcm to successive listening sessions until pcm is closed
// or ctx is done. It returns ctx.Err() on cancellation and an error when a
// recognizer cannot connect.
func (a *Agent) Listen(ctx context.Context, peerID string, pcm <-chan []byte) error {
	a.logger.Info("listening for trigger word", "peer", peerID, "word", a.cfg.TriggerWord)
	for {
		finished, err := a.session(ctx, peerID, pcm)
		if err != nil {
			return err
		}
		if finished {
			a.logger.Info("audio ended", "peer", peerID)
			return nil
		}
	}
}

func (a *Agent) session(ctx context.Context, peerID string, pcm <-chan []byte) (bool, error) {
	id := uuid.NewString()
	logger := a.logger.With("peer", peerID, "session", id[:8])

	gate, err := trigger.New(a.cfg.TriggerWord,
		trigger.WithCompletePolicy(a.cfg.Policy),
		trigger.WithLogger(logger))
	if err != nil {
		return true, err
	}

	sink := stream.NewChannelSink()
	if err := gate.Subscribe(sink); err != nil {
		sink.Cancel()
		return true, err
	}

	recognizer := a.factory()
	recognizer.Listen(gate)
	if err := recognizer.Connect(); err != nil {
		sink.Cancel()
		return true, fmt.Errorf("failed to connect recognizer: %w", err)
	}
	defer func() {
		sink.Cancel()
		if err := recognizer.Close(); err != nil {
			logger.Debug("closing recognizer", "err", err)
		}
	}()
	logger.Debug("session armed")

	var (
		input    = pcm
		finished bool
		deadline <-chan time.Time
	)
	events := sink.Events()

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()

		case data, ok := <-input:
			if !ok {
				input = nil
				finished = true
				if err := recognizer.Finish(); err != nil {
					logger.Warn("failed to finish recognition", "err", err)
					return true, nil
				}
				timer := time.NewTimer(a.cfg.FinishTimeout)
				defer timer.Stop()
				deadline = timer.C
				continue
			}
			if err := recognizer.SendAudio(data); err != nil {
				logger.Warn("failed to send audio", "err", err)
			}

		case event, ok := <-events:
			if !ok {
				return finished, nil
			}
			a.handle(logger, peerID, event)
			if event.Terminal() {
				if event.Kind == trigger.KindError && !finished {
					a.wait(ctx)
				}
				return finished, nil
			}

		case <-deadline:
			logger.Warn("recognizer did not finalize in time")
			return true, nil
		}
	}
}

func (a *Agent) handle(logger *log.Logger, peerID string, event trigger.Event) {
	switch event.Kind {
	case trigger.KindBegin:
		logger.Info("trigger word heard, listening")
	case trigger.KindWord:
		logger.Info("heard", "text", event.Text)
	case trigger.KindComplete:
		logger.Info("recognition complete, ready")
	case trigger.KindError:
		logger.Error("recognition failed", "err", event.Err)
	}
	a.publish(peerID, event)
}

func (a *Agent) wait(ctx context.Context) {
	if a.cfg.RetryDelay <= 0 {
		return
	}
	t := time.NewTimer(a.cfg.RetryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
