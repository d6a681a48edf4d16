// Package cpoe is computerized physician order entry: order admission behind
// the CDS engine and the order lifecycle afterwards.
package cpoe

import (
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/cds"
)

type OrderStatus string

const (
	StatusPendingSignature OrderStatus = "PendingSignature"
	StatusActive           OrderStatus = "Active"
	StatusDiscontinued     OrderStatus = "Discontinued"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPendingSignature, StatusActive, StatusDiscontinued:
		return true
	}
	return false
}

type Priority string

const (
	PriorityStat    Priority = "Stat"
	PriorityUrgent  Priority = "Urgent"
	PriorityRoutine Priority = "Routine"
	PriorityLow     Priority = "Low"
)

// orderTransitions lists the statuses reachable from each status.
var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusPendingSignature: {StatusActive, StatusDiscontinued},
	StatusActive:           {StatusDiscontinued},
	StatusDiscontinued:     {},
}

func CanTransition(from, to OrderStatus) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Order maps to the clinical_order table. OrderableItemName is filled on
// reads from the catalog join.
type Order struct {
	ID                    uuid.UUID              `db:"id" json:"id"`
	PatientID             uuid.UUID              `db:"patient_id" json:"patient_id"`
	OrderableItemID       uuid.UUID              `db:"orderable_item_id" json:"orderable_item_id"`
	OrderableItemName     string                 `db:"-" json:"orderable_item_name,omitempty"`
	OrderDetails          map[string]interface{} `db:"order_details" json:"order_details"`
	Priority              Priority               `db:"priority" json:"priority"`
	Status                OrderStatus            `db:"status" json:"status"`
	OrderingPhysicianID   string                 `db:"ordering_physician_id" json:"ordering_physician_id"`
	OrderPlacedAt         time.Time              `db:"order_placed_at" json:"order_placed_at"`
	SignedAt              *time.Time             `db:"signed_at" json:"signed_at,omitempty"`
	SignedBy              *string                `db:"signed_by" json:"signed_by,omitempty"`
	DiscontinuedAt        *time.Time             `db:"discontinued_at" json:"discontinued_at,omitempty"`
	DiscontinuedBy        *string                `db:"discontinued_by" json:"discontinued_by,omitempty"`
	DiscontinuationReason *string                `db:"discontinuation_reason" json:"discontinuation_reason,omitempty"`
	UpdatedAt             time.Time              `db:"updated_at" json:"updated_at"`
}

// OrderRequest is the body of a new order submission.
type OrderRequest struct {
	OrderableItemID string                 `json:"orderable_item_id" validate:"required,uuid"`
	OrderDetails    map[string]interface{} `json:"order_details" validate:"required"`
	Priority        string                 `json:"priority" validate:"omitempty,oneof=Stat Urgent Routine Low"`
}

type DiscontinueRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// StatusChange is one row of an order's audit trail.
type StatusChange struct {
	ID         uuid.UUID    `db:"id" json:"id"`
	OrderID    uuid.UUID    `db:"order_id" json:"order_id"`
	FromStatus *OrderStatus `db:"from_status" json:"from_status,omitempty"`
	ToStatus   OrderStatus  `db:"to_status" json:"to_status"`
	ChangedBy  string       `db:"changed_by" json:"changed_by"`
	Reason     *string      `db:"reason" json:"reason,omitempty"`
	ChangedAt  time.Time    `db:"changed_at" json:"changed_at"`
}

type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeBlocked Outcome = "blocked"
)

// SubmitResult is the admission decision. A blocked order is a normal result,
// not an error; Order is nil in that case.
type SubmitResult struct {
	Outcome Outcome
	Order   *Order
	Alerts  []cds.Alert
	Message string
}

const (
	MsgOrderCreated        = "Order created successfully and is pending signature."
	MsgOrderBlocked        = "Order blocked by critical CDS alert(s)."
	MsgOrderSigned         = "Order signed successfully."
	MsgOrderDiscontinued   = "Order discontinued."
	MsgSignRejected        = "Only orders with status 'PendingSignature' can be signed."
	MsgDiscontinueRejected = "Only 'Active' or 'PendingSignature' orders can be discontinued."
	DefaultDiscontinueNote = "Discontinued by physician order."
)

// Lifecycle event types published through the outbox.
const (
	EventOrderCreated      = "order.created"
	EventOrderSigned       = "order.signed"
	EventOrderDiscontinued = "order.discontinued"
)

// OrderEvent is the payload of a lifecycle event.
type OrderEvent struct {
	EventType       string      `json:"event_type"`
	OrderID         uuid.UUID   `json:"order_id"`
	PatientID       uuid.UUID   `json:"patient_id"`
	OrderableItemID uuid.UUID   `json:"orderable_item_id"`
	ItemName        string      `json:"orderable_item_name,omitempty"`
	Status          OrderStatus `json:"status"`
	Priority        Priority    `json:"priority"`
	Actor           string      `json:"actor"`
	Reason          *string     `json:"reason,omitempty"`
	Warnings        []cds.Alert `json:"warnings,omitempty"`
	OccurredAt      time.Time   `json:"occurred_at"`
}
