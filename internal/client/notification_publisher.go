package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/orderlink/be-plan-amendments/internal/repository"
)

// NotificationPublisher publishes amendment lifecycle events to NATS for
// consumption by downstream notification and reporting services.
//
// Subject convention: notifications.replenishment.<event_type>
// Event types: amendment_proposed, amendment_submitted,
//
//	amendment_area_manager_approved, amendment_regional_direct,
//	amendment_area_direct, amendment_admin_approved,
//	amendment_admin_rejected, amendment_modified
//
// All publish operations are non-fatal. Errors are logged but never
// propagated to the caller, so notification failures never interrupt the
// ledger operations that triggered them.
type NotificationPublisher struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// AmendmentEvent is the JSON schema published to NATS.
type AmendmentEvent struct {
	EventType     string `json:"event_type"`
	AmendmentID   string `json:"amendment_id"`
	StoreID       string `json:"store_id"`
	StockCode     string `json:"stock_code"`
	WeekReference string `json:"week_reference"`
	Status        string `json:"status"`
	AmendedQty    int    `json:"amended_qty"`
	ApprovedQty   *int   `json:"approved_qty,omitempty"`
	ActorID       string `json:"actor_id"`
	ActorRole     string `json:"actor_role"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// connection.
func NewNotificationPublisher(conn *nats.Conn, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{conn: conn, log: log}
}

// PublishAmendmentEvent publishes an amendment lifecycle event.
// Subject: notifications.replenishment.<eventType>
func (p *NotificationPublisher) PublishAmendmentEvent(ctx context.Context, eventType string, a *repository.Amendment, actorID, actorRole string) {
	if p.conn == nil || a == nil {
		return
	}

	event := &AmendmentEvent{
		EventType:     eventType,
		AmendmentID:   a.ID,
		StoreID:       a.StoreID,
		StockCode:     a.StockCode,
		WeekReference: a.WeekReference,
		Status:        string(a.Status),
		AmendedQty:    a.AmendedQty,
		ApprovedQty:   a.ApprovedQty,
		ActorID:       actorID,
		ActorRole:     actorRole,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.replenishment.%s", eventType)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("amendment_id", a.ID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("amendment_id", a.ID).
		Msg("notification: event published")
}
