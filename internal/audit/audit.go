package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/platformbuilds/sentinel-gate/pkg/cache"
	"github.com/platformbuilds/sentinel-gate/pkg/logger"
)

// Event is one immutable audit record. Details carry event-specific fields
// (deny dimension, violation id, credit amount, admin actor).
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"event_type"`
	Outcome   string                 `json:"outcome"`
	TenantID  string                 `json:"tenant_id,omitempty"`
	ClientID  string                 `json:"client_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Sink records audit events. Recording is fire-and-forget: a sink failure
// is logged and swallowed, it never propagates into the request path.
type Sink interface {
	Record(eventType, outcome, tenantID, clientID string, details map[string]interface{})
}

// valkeySink appends serialized events to the bounded Valkey audit trail.
type valkeySink struct {
	store  cache.ValkeyStore
	logger logger.Logger
}

func NewValkeySink(store cache.ValkeyStore, log logger.Logger) Sink {
	return &valkeySink{store: store, logger: log}
}

func (s *valkeySink) Record(eventType, outcome, tenantID, clientID string, details map[string]interface{}) {
	event := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Outcome:   outcome,
		TenantID:  tenantID,
		ClientID:  clientID,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("Audit event marshal failed", "type", eventType, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.store.AppendAuditEvent(ctx, payload); err != nil {
		s.logger.Error("Audit event append failed", "type", eventType, "error", err)
	}
}

// logSink writes audit events straight to the structured log. Used when no
// cache backend is configured.
type logSink struct {
	logger logger.Logger
}

func NewLogSink(log logger.Logger) Sink {
	return &logSink{logger: log}
}

func (s *logSink) Record(eventType, outcome, tenantID, clientID string, details map[string]interface{}) {
	s.logger.Info("audit",
		"event_type", eventType,
		"outcome", outcome,
		"tenant_id", tenantID,
		"client_id", clientID,
		"details", details,
	)
}

// NopSink discards events; test seam.
type NopSink struct{}

func (NopSink) Record(string, string, string, string, map[string]interface{}) {}
