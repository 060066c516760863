// Package hypothesis turns raw engine results into recognized words.
package hypothesis

import (
	"encoding/json"
	"strings"

	"github.com/charmbracelet/log"

	"example.com/trigger_bridge/pkg/stt"
)

// Extractor pulls the recognized text out of a hypothesis.
type Extractor struct {
	logger *log.Logger
}

// New creates an extractor that reports malformed payloads to logger.
func New(logger *log.Logger) *Extractor {
	if logger == nil {
		logger = log.Default()
	}
	return &Extractor{logger: logger}
}

// Extract returns the trimmed text of h, or false when h carries no word.
// Only the exact "text" key is read. Malformed payloads are logged and
// treated as no word.
func (e *Extractor) Extract(h stt.Hypothesis) (string, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(h, &fields); err != nil {
		e.logger.Warn("error parsing hypothesis", "err", err, "payload", string(h))
		return "", false
	}

	raw, ok := fields["text"]
	if !ok {
		e.logger.Debug("hypothesis without text", "payload", string(h))
		return "", false
	}
	var text *string
	if err := json.Unmarshal(raw, &text); err != nil {
		e.logger.Warn("error parsing hypothesis text", "err", err, "payload", string(h))
		return "", false
	}
	if text == nil {
		e.logger.Debug("hypothesis without text", "payload", string(h))
		return "", false
	}

	trimmed := strings.TrimSpace(*text)
	if trimmed == "" {
		return "", false
	}
	return trimmed, true
}
