package routing

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/halcyonlabs/relay/internal/service/models/record"
)

// Resolution is one resolved delivery: where to send, what to send, and the
// earliest time the dispatch may happen (zero means immediately).
type Resolution struct {
	Destination string
	Payload     json.RawMessage
	DueAt       time.Time
}

// Engine resolves a record's routing configuration into deliveries. It is
// stateless and safe for concurrent use.
type Engine struct {
	random func() float64
}

// option configures the Engine.
type option func(*Engine)

// NewEngine creates a routing engine.
func NewEngine(opts ...option) *Engine {
	e := &Engine{
		random: rand.Float64,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// WithRandom overrides the sampling source, used by tests for determinism.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithRandom(random func() float64) option {
	return func(e *Engine) {
		e.random = random
	}
}

// Resolve evaluates the record's routing config in target order and returns
// the deliveries to perform. A bare routing key bypasses evaluation entirely.
// An empty result is a valid outcome: it means the record matched nothing and
// no fallback is configured.
func (e *Engine) Resolve(rec *record.Record) ([]Resolution, error) {
	if len(rec.RoutingConfig) == 0 {
		if rec.RoutingKey == "" {
			return nil, nil
		}

		return []Resolution{{Destination: rec.RoutingKey, Payload: rec.Payload}}, nil
	}

	cfg, err := ParseConfig(rec.RoutingConfig)
	if err != nil {
		return nil, err
	}

	doc := buildDocument(rec)

	resolutions := make([]Resolution, 0, len(cfg.Targets))
	for i := range cfg.Targets {
		target := &cfg.Targets[i]

		if target.Conditions != nil {
			matched, err := target.Conditions.Eval(doc)
			if err != nil {
				return nil, fmt.Errorf("target %d: %w", i, err)
			}
			if !matched {
				continue
			}
		}

		if target.SamplingRate != nil && e.random() >= *target.SamplingRate {
			continue
		}

		payload := rec.Payload
		if target.Transform != nil {
			payload, err = target.Transform.Apply(rec.Payload)
			if err != nil {
				return nil, fmt.Errorf("target %d: %w", i, err)
			}
		}

		resolution := Resolution{
			Destination: target.Destination,
			Payload:     payload,
		}
		if target.DelaySeconds > 0 {
			resolution.DueAt = rec.OccurredAt.Add(time.Duration(target.DelaySeconds) * time.Second)
		}
		resolutions = append(resolutions, resolution)
	}

	if len(resolutions) == 0 && cfg.Fallback != "" {
		return []Resolution{{Destination: cfg.Fallback, Payload: rec.Payload}}, nil
	}

	return resolutions, nil
}

// buildDocument exposes the record to the condition interpreter as a two-root
// map: payload fields under "payload", metadata under "metadata".
func buildDocument(rec *record.Record) map[string]any {
	doc := map[string]any{}

	var payload map[string]any
	if err := json.Unmarshal(rec.Payload, &payload); err == nil {
		doc["payload"] = payload
	}

	metadata := make(map[string]any, len(rec.Metadata))
	for key, val := range rec.Metadata {
		metadata[key] = val
	}
	doc["metadata"] = metadata

	return doc
}
