package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stride-io/stride/internal/config"
	"github.com/stride-io/stride/internal/provider"
	"github.com/stride-io/stride/pkg/protocol"
)

// Analyzer turns customer utterances into ComplaintSignals through an LLM
// provider. It is fail-closed: any failure at this boundary (timeout, queue
// saturation, malformed model output) yields the ambiguous signal so the
// pipeline asks for clarification instead of guessing.
type Analyzer struct {
	provider provider.Provider
	model    string
	logger   *slog.Logger

	slots       chan struct{}
	queueWait   time.Duration
	callTimeout time.Duration
	minConf     float64
}

// New creates an Analyzer bounded by cfg.
func New(p provider.Provider, model string, cfg config.AnalyzerConfig, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		provider:    p,
		model:       model,
		logger:      logger,
		slots:       make(chan struct{}, cfg.MaxInflight),
		queueWait:   time.Duration(cfg.QueueWaitSeconds) * time.Second,
		callTimeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		minConf:     cfg.MinConfidence,
	}
}

// rawSignal is the strict JSON shape the model is prompted to emit.
type rawSignal struct {
	Intent     protocol.Intent `json:"intent"`
	DefectType string          `json:"defect_type"`
	Misuse     *bool           `json:"misuse"`
	Confidence float64         `json:"confidence"`
}

// Extract classifies the latest utterance given the prior conversation.
// The returned signal is always usable; extraction never blocks the pipeline
// beyond the configured queue wait plus call timeout.
func (a *Analyzer) Extract(ctx context.Context, history []protocol.ChatMessage, utterance string) protocol.ComplaintSignal {
	select {
	case a.slots <- struct{}{}:
		defer func() { <-a.slots }()
	case <-time.After(a.queueWait):
		a.logger.Warn("analyzer queue saturated, failing closed")
		return protocol.AmbiguousSignal()
	case <-ctx.Done():
		return protocol.AmbiguousSignal()
	}

	sig, err := a.extractOnce(ctx, history, utterance)
	if err != nil {
		a.logger.Warn("extraction failed, retrying once", "error", err)
		sig, err = a.extractOnce(ctx, history, utterance)
	}
	if err != nil {
		a.logger.Warn("extraction failed, failing closed", "error", err)
		return protocol.AmbiguousSignal()
	}
	return sig
}

func (a *Analyzer) extractOnce(ctx context.Context, history []protocol.ChatMessage, utterance string) (protocol.ComplaintSignal, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	messages := make([]protocol.ChatMessage, 0, len(history)+2)
	messages = append(messages, protocol.ChatMessage{Role: "system", Content: extractionSystemPrompt})
	messages = append(messages, history...)
	messages = append(messages, protocol.ChatMessage{Role: "user", Content: utterance})

	resp, err := a.provider.Chat(callCtx, protocol.ChatRequest{
		Model:     a.model,
		Messages:  messages,
		MaxTokens: 256,
	})
	if err != nil {
		return protocol.ComplaintSignal{}, fmt.Errorf("analyzer: chat: %w", err)
	}

	raw, err := parseRaw(resp.Content)
	if err != nil {
		return protocol.ComplaintSignal{}, err
	}
	return a.toSignal(raw), nil
}

// parseRaw decodes the model output strictly: one JSON object, optionally
// inside a markdown fence, with a valid intent and confidence in [0, 1].
func parseRaw(content string) (rawSignal, error) {
	text := stripFence(strings.TrimSpace(content))

	var raw rawSignal
	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return rawSignal{}, fmt.Errorf("analyzer: decode model output: %w", err)
	}
	if !protocol.ValidIntent(raw.Intent) {
		return rawSignal{}, fmt.Errorf("analyzer: model emitted unknown intent %q", raw.Intent)
	}
	if raw.Confidence < 0 || raw.Confidence > 1 {
		return rawSignal{}, fmt.Errorf("analyzer: confidence %v out of range", raw.Confidence)
	}
	switch raw.DefectType {
	case "", protocol.DefectManufacturing, protocol.DefectWear, protocol.DefectWaterDamage:
	default:
		return rawSignal{}, fmt.Errorf("analyzer: model emitted unknown defect type %q", raw.DefectType)
	}
	return raw, nil
}

func (a *Analyzer) toSignal(raw rawSignal) protocol.ComplaintSignal {
	intent := raw.Intent
	if raw.Confidence < a.minConf {
		intent = protocol.IntentAmbiguous
	}
	return protocol.ComplaintSignal{
		Intent:         intent,
		DefectType:     raw.DefectType,
		MisuseFlag:     raw.Misuse,
		AmbiguityScore: 1 - raw.Confidence,
	}
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
