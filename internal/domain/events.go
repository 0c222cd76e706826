package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WorkflowEvent is the message published to the event exchange whenever the
// workflow completes a state change. Downstream consumers (mailers, analytics)
// key off the routing key; the body carries enough to act without a lookup.
type WorkflowEvent struct {
	EventID           string          `json:"event_id"`
	NotificationID    string          `json:"notification_id,omitempty"`
	ActorID           uuid.UUID       `json:"actor_id"`
	ActorEmail        string          `json:"actor_email"`
	CounterpartyEmail string          `json:"counterparty_email,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	OccurredAt        time.Time       `json:"occurred_at"`
}

// Routing keys for WorkflowEvent on the p2ploan.events exchange.
const (
	EventTransferSent    = "loan.transfer.sent"
	EventRequestCreated  = "loan.request.created"
	EventRequestAccepted = "loan.request.accepted"
	EventRequestDeclined = "loan.request.declined"
)
