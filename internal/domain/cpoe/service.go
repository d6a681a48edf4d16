package cpoe

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/catalog"
	"github.com/hms/hms/internal/domain/cds"
	"github.com/hms/hms/internal/domain/chart"
	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/metrics"
)

// TxRunner executes fn inside one database transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventWriter appends a lifecycle event to the transactional outbox.
type EventWriter interface {
	Write(ctx context.Context, aggregateType, aggregateID, eventType, key string, payload interface{}) error
}

type Evaluator interface {
	Evaluate(ctx context.Context, patient *chart.Patient, item *catalog.OrderableItem, details map[string]interface{}) ([]cds.Alert, error)
}

type PatientLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*chart.Patient, error)
}

type ItemLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*catalog.OrderableItem, error)
}

type Service struct {
	orders    OrderRepository
	patients  PatientLookup
	items     ItemLookup
	evaluator Evaluator
	tx        TxRunner
	events    EventWriter
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewService wires the admission controller. events may be nil, in which
// case no lifecycle events are recorded.
func NewService(orders OrderRepository, patients PatientLookup, items ItemLookup, evaluator Evaluator,
	tx TxRunner, events EventWriter, logger zerolog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		orders:    orders,
		patients:  patients,
		items:     items,
		evaluator: evaluator,
		tx:        tx,
		events:    events,
		logger:    logger.With().Str("component", "cpoe").Logger(),
		metrics:   m,
		now:       time.Now,
	}
}

// SubmitOrder runs the CDS checks for a new order and creates it as
// PendingSignature unless a Critical alert blocks it. Reads, evaluation and
// the insert share one transaction.
func (s *Service) SubmitOrder(ctx context.Context, patientID uuid.UUID, actor string, req *OrderRequest) (*SubmitResult, error) {
	if err := apperr.ValidateStruct(req); err != nil {
		return nil, err
	}
	itemID, err := uuid.Parse(req.OrderableItemID)
	if err != nil {
		return nil, apperr.Validation("orderable_item_id must be a valid UUID")
	}
	priority := Priority(req.Priority)
	if priority == "" {
		priority = PriorityRoutine
	}

	var result *SubmitResult
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		patient, err := s.patients.GetByID(ctx, patientID)
		if errors.Is(err, chart.ErrPatientNotFound) {
			return apperr.NotFound("patient", patientID.String())
		}
		if err != nil {
			return apperr.Storage("load patient", err)
		}

		item, err := s.items.GetByID(ctx, itemID)
		if errors.Is(err, catalog.ErrNotFound) {
			return apperr.NotFound("orderable item", itemID.String())
		}
		if err != nil {
			return apperr.Storage("load orderable item", err)
		}

		alerts, err := s.evaluator.Evaluate(ctx, patient, item, req.OrderDetails)
		if err != nil {
			return apperr.Storage("evaluate cds checks", err)
		}
		if alerts == nil {
			alerts = []cds.Alert{}
		}

		if cds.HasCritical(alerts) {
			result = &SubmitResult{Outcome: OutcomeBlocked, Alerts: alerts, Message: MsgOrderBlocked}
			return nil
		}

		order := &Order{
			PatientID:           patient.ID,
			OrderableItemID:     item.ID,
			OrderableItemName:   item.Name,
			OrderDetails:        req.OrderDetails,
			Priority:            priority,
			Status:              StatusPendingSignature,
			OrderingPhysicianID: actor,
		}
		if err := s.orders.Create(ctx, order); err != nil {
			return apperr.Storage("create order", err)
		}
		if err := s.recordTransition(ctx, order, nil, actor, nil, EventOrderCreated, alerts); err != nil {
			return err
		}

		result = &SubmitResult{Outcome: OutcomeCreated, Order: order, Alerts: alerts, Message: MsgOrderCreated}
		return nil
	})
	if err != nil {
		err = storageOrTyped("submit order", err)
		var se *apperr.StorageError
		if errors.As(err, &se) {
			s.metrics.OrderSubmitted("error")
		}
		s.logFailure(err, "order submission failed", patientID)
		return nil, err
	}

	s.metrics.OrderSubmitted(string(result.Outcome))
	if result.Outcome == OutcomeBlocked {
		s.logger.Info().
			Str("patient_id", patientID.String()).
			Str("item_id", itemID.String()).
			Str("actor", actor).
			Int("alerts", len(result.Alerts)).
			Msg("order blocked by critical cds alert")
		return result, nil
	}

	s.metrics.OrderTransitioned(string(StatusPendingSignature))
	s.logger.Info().
		Str("order_id", result.Order.ID.String()).
		Str("patient_id", patientID.String()).
		Str("actor", actor).
		Int("warnings", len(result.Alerts)).
		Msg("order created")
	return result, nil
}

// SignOrder moves a PendingSignature order to Active.
func (s *Service) SignOrder(ctx context.Context, id uuid.UUID, actor string) (*Order, error) {
	return s.transition(ctx, id, actor, StatusActive, nil)
}

// DiscontinueOrder stops a PendingSignature or Active order. A blank reason
// is replaced by the default note.
func (s *Service) DiscontinueOrder(ctx context.Context, id uuid.UUID, actor, reason string) (*Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultDiscontinueNote
	}
	return s.transition(ctx, id, actor, StatusDiscontinued, &reason)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, actor string, to OrderStatus, reason *string) (*Order, error) {
	var order *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetByIDForUpdate(ctx, id)
		if errors.Is(err, ErrOrderNotFound) {
			return apperr.NotFound("order", id.String())
		}
		if err != nil {
			return apperr.Storage("load order", err)
		}

		from := o.Status
		if !CanTransition(from, to) {
			return &apperr.TransitionError{From: string(from), To: string(to), Message: rejectionMessage(to)}
		}

		now := s.now().UTC()
		o.Status = to
		event := EventOrderSigned
		switch to {
		case StatusActive:
			o.SignedAt = &now
			o.SignedBy = &actor
		case StatusDiscontinued:
			o.DiscontinuedAt = &now
			o.DiscontinuedBy = &actor
			o.DiscontinuationReason = reason
			event = EventOrderDiscontinued
		}

		if err := s.orders.UpdateStatus(ctx, o); err != nil {
			if errors.Is(err, ErrOrderNotFound) {
				return apperr.NotFound("order", id.String())
			}
			return apperr.Storage("update order status", err)
		}
		if err := s.recordTransition(ctx, o, &from, actor, reason, event, nil); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		err = storageOrTyped("transition order", err)
		var te *apperr.TransitionError
		if errors.As(err, &te) {
			s.logger.Info().Str("order_id", id.String()).Str("from", te.From).Str("to", te.To).Msg("order transition rejected")
		} else {
			s.logFailure(err, "order transition failed", id)
		}
		return nil, err
	}

	s.metrics.OrderTransitioned(string(to))
	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("status", string(to)).
		Str("actor", actor).
		Msg("order status changed")
	return order, nil
}

func rejectionMessage(to OrderStatus) string {
	if to == StatusActive {
		return MsgSignRejected
	}
	return MsgDiscontinueRejected
}

// recordTransition appends the audit row and, when events are enabled, the
// outbox entry for the order's new status.
func (s *Service) recordTransition(ctx context.Context, o *Order, from *OrderStatus, actor string, reason *string,
	eventType string, warnings []cds.Alert) error {
	change := &StatusChange{
		OrderID:    o.ID,
		FromStatus: from,
		ToStatus:   o.Status,
		ChangedBy:  actor,
		Reason:     reason,
	}
	if err := s.orders.RecordStatusChange(ctx, change); err != nil {
		return apperr.Storage("record order status change", err)
	}

	if s.events == nil {
		return nil
	}
	evt := OrderEvent{
		EventType:       eventType,
		OrderID:         o.ID,
		PatientID:       o.PatientID,
		OrderableItemID: o.OrderableItemID,
		ItemName:        o.OrderableItemName,
		Status:          o.Status,
		Priority:        o.Priority,
		Actor:           actor,
		Reason:          reason,
		Warnings:        warnings,
		OccurredAt:      s.now().UTC(),
	}
	if err := s.events.Write(ctx, "order", o.ID.String(), eventType, o.PatientID.String(), evt); err != nil {
		return apperr.Storage("write order event", err)
	}
	return nil
}

// storageOrTyped wraps errors that InTx raised itself (acquire, begin,
// commit) as StorageError; domain errors from fn pass through unchanged.
func storageOrTyped(op string, err error) error {
	var (
		nf *apperr.NotFoundError
		ve *apperr.ValidationError
		se *apperr.StorageError
		te *apperr.TransitionError
	)
	if errors.As(err, &nf) || errors.As(err, &ve) || errors.As(err, &se) || errors.As(err, &te) {
		return err
	}
	return apperr.Storage(op, err)
}

func (s *Service) logFailure(err error, msg string, id uuid.UUID) {
	var se *apperr.StorageError
	if errors.As(err, &se) {
		s.logger.Error().Err(se.Err).Str("op", se.Op).Str("id", id.String()).Msg(msg)
	}
}

func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if errors.Is(err, ErrOrderNotFound) {
		return nil, apperr.NotFound("order", id.String())
	}
	if err != nil {
		return nil, apperr.Storage("get order", err)
	}
	return o, nil
}

// ListOrders returns the patient's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, patientID uuid.UUID, status OrderStatus, limit, offset int) ([]*Order, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, apperr.Validation("invalid order status: %s", status)
	}
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		if errors.Is(err, chart.ErrPatientNotFound) {
			return nil, 0, apperr.NotFound("patient", patientID.String())
		}
		return nil, 0, apperr.Storage("load patient", err)
	}
	orders, total, err := s.orders.ListByPatient(ctx, patientID, status, limit, offset)
	if err != nil {
		return nil, 0, apperr.Storage("list orders", err)
	}
	return orders, total, nil
}

func (s *Service) OrderHistory(ctx context.Context, id uuid.UUID) ([]*StatusChange, error) {
	if _, err := s.GetOrder(ctx, id); err != nil {
		return nil, err
	}
	changes, err := s.orders.ListStatusHistory(ctx, id)
	if err != nil {
		return nil, apperr.Storage("list order history", err)
	}
	return changes, nil
}
