package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NotificationPublisher publishes routing and approval events to NATS for
// consumption by the platform notification service.
//
// Subject convention: <prefix>.<event_type>, where the event type is one of
// approval_required, document_auto_approved, document_approved,
// document_rejected, capex_submitted, capex_approved or capex_rejected.
//
// All publish operations are non-fatal: errors are logged but never
// propagated, so notification failures never interrupt routing operations.
type NotificationPublisher struct {
	conn          *nats.Conn
	subjectPrefix string
	log           zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string                 `json:"event_type"`
	TenantID     string                 `json:"tenant_id"`
	ActorID      string                 `json:"actor_id,omitempty"`
	ResourceType string                 `json:"resource_type,omitempty"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher connects to NATS. An empty URL returns a disabled
// publisher that drops every event.
func NewNotificationPublisher(url, subjectPrefix string, log zerolog.Logger) (*NotificationPublisher, error) {
	p := &NotificationPublisher{subjectPrefix: subjectPrefix, log: log}
	if url == "" {
		log.Info().Msg("NATS URL not configured; notification publishing disabled")
		return p, nil
	}

	conn, err := nats.Connect(url,
		nats.Name("be-ops-approvals"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	p.conn = conn
	return p, nil
}

// PublishRoutingEvent publishes one routing outcome event.
// Subject: <prefix>.<eventType>
func (p *NotificationPublisher) PublishRoutingEvent(ctx context.Context, eventType, documentID, tenantID, actorID string, payload map[string]interface{}) {
	if p.conn == nil {
		return
	}

	event := NotificationEvent{
		EventType:    eventType,
		TenantID:     tenantID,
		ActorID:      actorID,
		ResourceType: "document",
		ResourceID:   documentID,
		Payload:      payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("Failed to marshal notification event")
		return
	}

	subject := fmt.Sprintf("%s.%s", p.subjectPrefix, eventType)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("document_id", documentID).
			Msg("Failed to publish notification event")
	}
}

// Close drains the connection.
func (p *NotificationPublisher) Close() {
	if p.conn != nil {
		_ = p.conn.Drain()
	}
}
