package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/bizcore/be-approvals/internal/repository"
)

// NotificationPublisher publishes approval workflow events to NATS for
// consumption by the notifications service.
//
// Subject convention: notifications.approvals.<event_type>
// Event types: approval_submitted, approval_advanced, approval_approved,
//              approval_rejected, approval_delegated, approval_withdrawn
//
// All publish operations are non-fatal: errors are logged but never
// propagated, so notification failures never interrupt approval operations.
type NotificationPublisher struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string   `json:"event_type"`
	InstanceID   string   `json:"instance_id"`
	EntityType   string   `json:"entity_type"`
	EntityID     string   `json:"entity_id"`
	Title        string   `json:"title"`
	Status       string   `json:"status"`
	CurrentLevel int      `json:"current_level"`
	TotalLevels  int      `json:"total_levels"`
	ActorID      string   `json:"actor_id"`
	Recipients   []string `json:"recipients"`
	Urgency      string   `json:"urgency,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// connection. A nil connection disables publishing.
func NewNotificationPublisher(conn *nats.Conn, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{conn: conn, log: log}
}

// PublishApprovalEvent publishes one approval lifecycle event.
// Subject: notifications.approvals.<eventType>
func (p *NotificationPublisher) PublishApprovalEvent(ctx context.Context, eventType string, inst *repository.ApprovalInstance, actorID string, recipients []string) {
	if p.conn == nil {
		return
	}
	recipients = dedupe(recipients)
	if len(recipients) == 0 {
		return
	}

	event := &NotificationEvent{
		EventType:    eventType,
		InstanceID:   inst.ID,
		EntityType:   string(inst.EntityType),
		EntityID:     inst.EntityID,
		Title:        inst.Title,
		Status:       string(inst.Status),
		CurrentLevel: inst.CurrentLevel,
		TotalLevels:  inst.TotalLevels,
		ActorID:      actorID,
		Recipients:   recipients,
		Urgency:      string(inst.Urgency),
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.approvals.%s", eventType)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("instance_id", inst.ID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("instance_id", inst.ID).
		Int("recipients", len(recipients)).
		Msg("notification: event published")
}

// dedupe drops empty and repeated recipient IDs, preserving order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	var out []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
