package cpoe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/catalog"
	"github.com/hms/hms/internal/domain/cds"
	"github.com/hms/hms/internal/domain/chart"
	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/metrics"
)

// -- Mock Repositories --

type mockOrderRepo struct {
	orders  map[uuid.UUID]*Order
	history []*StatusChange
	placed  time.Time
	err     error
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[uuid.UUID]*Order), placed: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.err != nil {
		return m.err
	}
	o.ID = uuid.New()
	m.placed = m.placed.Add(time.Minute)
	o.OrderPlacedAt = m.placed
	o.UpdatedAt = m.placed
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Order, error) {
	return m.GetByID(ctx, id)
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, o *Order) error {
	if m.err != nil {
		return m.err
	}
	if _, ok := m.orders[o.ID]; !ok {
		return ErrOrderNotFound
	}
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) ListByPatient(_ context.Context, patientID uuid.UUID, status OrderStatus, limit, offset int) ([]*Order, int, error) {
	if m.err != nil {
		return nil, 0, m.err
	}
	var out []*Order
	for _, o := range m.orders {
		if o.PatientID == patientID && (status == "" || o.Status == status) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderPlacedAt.After(out[j].OrderPlacedAt) })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m *mockOrderRepo) FindActiveOrder(_ context.Context, patientID, itemID uuid.UUID) (uuid.UUID, bool, error) {
	if m.err != nil {
		return uuid.Nil, false, m.err
	}
	for _, o := range m.orders {
		if o.PatientID == patientID && o.OrderableItemID == itemID && o.Status == StatusActive {
			return o.ID, true, nil
		}
	}
	return uuid.Nil, false, nil
}

func (m *mockOrderRepo) RecordStatusChange(_ context.Context, c *StatusChange) error {
	c.ID = uuid.New()
	c.ChangedAt = time.Now()
	m.history = append(m.history, c)
	return nil
}

func (m *mockOrderRepo) ListStatusHistory(_ context.Context, orderID uuid.UUID) ([]*StatusChange, error) {
	var out []*StatusChange
	for _, c := range m.history {
		if c.OrderID == orderID {
			out = append(out, c)
		}
	}
	return out, nil
}

type mockChart struct {
	patients  map[uuid.UUID]*chart.Patient
	allergies map[uuid.UUID][]*chart.PatientAllergy
	meds      map[uuid.UUID][]*chart.PatientMedication
}

func (m *mockChart) GetByID(_ context.Context, id uuid.UUID) (*chart.Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, chart.ErrPatientNotFound
	}
	return p, nil
}

func (m *mockChart) ListActiveAllergies(_ context.Context, id uuid.UUID) ([]*chart.PatientAllergy, error) {
	return m.allergies[id], nil
}

func (m *mockChart) ListActiveInpatientMedications(_ context.Context, id uuid.UUID) ([]*chart.PatientMedication, error) {
	return m.meds[id], nil
}

type mockItems map[uuid.UUID]*catalog.OrderableItem

func (m mockItems) GetByID(_ context.Context, id uuid.UUID) (*catalog.OrderableItem, error) {
	i, ok := m[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return i, nil
}

type staticRules []*cds.CDSRule

func (r staticRules) ListActiveByType(_ context.Context, t cds.RuleType) ([]*cds.CDSRule, error) {
	var out []*cds.CDSRule
	for _, rule := range r {
		if rule.IsActive && rule.RuleType == t {
			out = append(out, rule)
		}
	}
	return out, nil
}

// fakeTx runs fn directly and counts outcomes.
type fakeTx struct {
	commits   int
	rollbacks int
	commitErr error
}

func (f *fakeTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		f.rollbacks++
		return err
	}
	if f.commitErr != nil {
		f.rollbacks++
		return fmt.Errorf("commit transaction: %w", f.commitErr)
	}
	f.commits++
	return nil
}

type recordedEvent struct {
	aggregateID string
	eventType   string
	key         string
	payload     OrderEvent
}

type fakeEvents struct {
	events []recordedEvent
	err    error
}

func (f *fakeEvents) Write(_ context.Context, _, aggregateID, eventType, key string, payload interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, recordedEvent{aggregateID, eventType, key, payload.(OrderEvent)})
	return nil
}

type fixture struct {
	svc     *Service
	orders  *mockOrderRepo
	chart   *mockChart
	items   mockItems
	tx      *fakeTx
	events  *fakeEvents
	metrics *metrics.Metrics
	patient *chart.Patient
	aspirin *catalog.OrderableItem
	cbc     *catalog.OrderableItem
}

func ptrF(f float64) *float64 { return &f }
func ptrS(s string) *string   { return &s }

func newFixture() *fixture {
	f := &fixture{
		orders: newMockOrderRepo(),
		chart: &mockChart{
			patients:  map[uuid.UUID]*chart.Patient{},
			allergies: map[uuid.UUID][]*chart.PatientAllergy{},
			meds:      map[uuid.UUID][]*chart.PatientMedication{},
		},
		items:   mockItems{},
		tx:      &fakeTx{},
		events:  &fakeEvents{},
		metrics: metrics.New(prometheus.NewRegistry()),
		patient: &chart.Patient{ID: uuid.New(), MRN: "MRN-100", FirstName: "Grace", LastName: "Hopper"},
		aspirin: &catalog.OrderableItem{
			ID: uuid.New(), ItemType: catalog.ItemMedication, Name: "Aspirin 81mg", GenericName: ptrS("aspirin"),
			IsActive: true, MinDose: ptrF(81), MaxDose: ptrF(325), DefaultDoseUnit: ptrS("mg"),
		},
		cbc: &catalog.OrderableItem{ID: uuid.New(), ItemType: catalog.ItemLabTest, Name: "Complete Blood Count", IsActive: true},
	}
	f.chart.patients[f.patient.ID] = f.patient
	f.items[f.aspirin.ID] = f.aspirin
	f.items[f.cbc.ID] = f.cbc

	rules := staticRules{{
		RuleName:  "Core interactions",
		RuleType:  cds.RuleDrugInteraction,
		RuleLogic: json.RawMessage(`{"interactions": [["warfarin","aspirin"]]}`),
		IsActive:  true,
	}}
	eval := cds.NewEvaluator(f.orders, f.chart, f.chart, rules, zerolog.Nop(), f.metrics)
	f.svc = NewService(f.orders, f.chart, f.items, eval, f.tx, f.events, zerolog.Nop(), f.metrics)
	f.svc.now = func() time.Time { return time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC) }
	return f
}

func (f *fixture) request(item *catalog.OrderableItem, details map[string]interface{}) *OrderRequest {
	if details == nil {
		details = map[string]interface{}{}
	}
	return &OrderRequest{OrderableItemID: item.ID.String(), OrderDetails: details}
}

func (f *fixture) submit(t *testing.T, item *catalog.OrderableItem, details map[string]interface{}) *SubmitResult {
	t.Helper()
	res, err := f.svc.SubmitOrder(context.Background(), f.patient.ID, "dr-strange", f.request(item, details))
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	return res
}

func TestSubmitOrder_Clean(t *testing.T) {
	f := newFixture()
	res := f.submit(t, f.aspirin, map[string]interface{}{"dose": 81, "unit": "mg"})

	if res.Outcome != OutcomeCreated || res.Message != MsgOrderCreated {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Alerts) != 0 || res.Alerts == nil {
		t.Errorf("expected empty warnings, got %#v", res.Alerts)
	}
	o := res.Order
	if o.Status != StatusPendingSignature || o.Priority != PriorityRoutine || o.OrderingPhysicianID != "dr-strange" {
		t.Errorf("unexpected order %+v", o)
	}
	if len(f.orders.orders) != 1 || f.tx.commits != 1 {
		t.Errorf("expected one committed order, got %d orders, %d commits", len(f.orders.orders), f.tx.commits)
	}
	if got := testutil.ToFloat64(f.metrics.OrderSubmissions.WithLabelValues("created")); got != 1 {
		t.Errorf("expected created counter 1, got %v", got)
	}
}

func TestSubmitOrder_EmitsCreatedEvent(t *testing.T) {
	f := newFixture()
	res := f.submit(t, f.aspirin, map[string]interface{}{"dose": 500})

	if len(f.events.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(f.events.events))
	}
	ev := f.events.events[0]
	if ev.eventType != EventOrderCreated || ev.aggregateID != res.Order.ID.String() || ev.key != f.patient.ID.String() {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.payload.Status != StatusPendingSignature || len(ev.payload.Warnings) != 1 {
		t.Errorf("unexpected payload %+v", ev.payload)
	}
	if len(f.orders.history) != 1 || f.orders.history[0].FromStatus != nil {
		t.Errorf("expected initial history row, got %+v", f.orders.history)
	}
}

func TestSubmitOrder_AllergyBlocks(t *testing.T) {
	f := newFixture()
	f.chart.allergies[f.patient.ID] = []*chart.PatientAllergy{{AllergenName: "ASPIRIN", IsActive: true}}

	res := f.submit(t, f.aspirin, map[string]interface{}{"dose": 81})
	if res.Outcome != OutcomeBlocked || res.Order != nil {
		t.Fatalf("expected blocked result, got %+v", res)
	}
	if res.Message != MsgOrderBlocked {
		t.Errorf("unexpected message %q", res.Message)
	}
	if len(res.Alerts) != 1 || res.Alerts[0].Type != cds.AlertAllergy || res.Alerts[0].Severity != cds.SeverityCritical {
		t.Errorf("unexpected alerts %+v", res.Alerts)
	}
	if len(f.orders.orders) != 0 || len(f.events.events) != 0 || len(f.orders.history) != 0 {
		t.Error("blocked order must not write anything")
	}
	if got := testutil.ToFloat64(f.metrics.OrderSubmissions.WithLabelValues("blocked")); got != 1 {
		t.Errorf("expected blocked counter 1, got %v", got)
	}
}

func TestSubmitOrder_BlockedCarriesWarningsToo(t *testing.T) {
	f := newFixture()
	f.chart.allergies[f.patient.ID] = []*chart.PatientAllergy{{AllergenName: "aspirin"}}

	res := f.submit(t, f.aspirin, map[string]interface{}{"dose": 1000, "unit": "mg"})
	if res.Outcome != OutcomeBlocked {
		t.Fatalf("expected blocked, got %s", res.Outcome)
	}
	if len(res.Alerts) != 2 || res.Alerts[1].Type != cds.AlertDoseRange {
		t.Errorf("expected allergy then dose alerts, got %+v", res.Alerts)
	}
}

func TestSubmitOrder_DuplicateWarnsButCreates(t *testing.T) {
	f := newFixture()
	first := f.submit(t, f.cbc, nil)
	if _, err := f.svc.SignOrder(context.Background(), first.Order.ID, "dr-strange"); err != nil {
		t.Fatalf("SignOrder: %v", err)
	}

	res := f.submit(t, f.cbc, nil)
	if res.Outcome != OutcomeCreated {
		t.Fatalf("duplicate must not block, got %+v", res)
	}
	if len(res.Alerts) != 1 || res.Alerts[0].Type != cds.AlertDuplicateOrder || res.Alerts[0].Severity != cds.SeverityWarning {
		t.Errorf("unexpected alerts %+v", res.Alerts)
	}
	if len(f.orders.orders) != 2 {
		t.Errorf("expected 2 orders, got %d", len(f.orders.orders))
	}
}

func TestSubmitOrder_PendingOrderIsNotDuplicate(t *testing.T) {
	f := newFixture()
	f.submit(t, f.cbc, nil)
	res := f.submit(t, f.cbc, nil)
	if len(res.Alerts) != 0 {
		t.Errorf("only Active orders count as duplicates, got %+v", res.Alerts)
	}
}

func TestSubmitOrder_InteractionWarning(t *testing.T) {
	f := newFixture()
	f.chart.meds[f.patient.ID] = []*chart.PatientMedication{{
		MedicationName: "Warfarin 5mg", MedType: chart.MedInpatientActive, Status: chart.MedStatusActive,
	}}

	res := f.submit(t, f.aspirin, map[string]interface{}{"dose": 81})
	if res.Outcome != OutcomeCreated {
		t.Fatalf("warning must not block, got %+v", res)
	}
	if len(res.Alerts) != 1 || res.Alerts[0].Type != cds.AlertDrugInteraction {
		t.Errorf("expected one interaction warning, got %+v", res.Alerts)
	}
}

func TestSubmitOrder_Priority(t *testing.T) {
	f := newFixture()
	req := f.request(f.cbc, nil)
	req.Priority = "Stat"
	res, err := f.svc.SubmitOrder(context.Background(), f.patient.ID, "dr-strange", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Order.Priority != PriorityStat {
		t.Errorf("expected Stat, got %s", res.Order.Priority)
	}

	req.Priority = "Whenever"
	_, err = f.svc.SubmitOrder(context.Background(), f.patient.ID, "dr-strange", req)
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestSubmitOrder_Validation(t *testing.T) {
	f := newFixture()
	tests := []struct {
		name string
		req  *OrderRequest
	}{
		{"missing item", &OrderRequest{OrderDetails: map[string]interface{}{}}},
		{"bad item id", &OrderRequest{OrderableItemID: "aspirin", OrderDetails: map[string]interface{}{}}},
		{"missing details", &OrderRequest{OrderableItemID: f.cbc.ID.String()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SubmitOrder(context.Background(), f.patient.ID, "dr-strange", tt.req)
			var ve *apperr.ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestSubmitOrder_NotFound(t *testing.T) {
	f := newFixture()
	var nf *apperr.NotFoundError

	_, err := f.svc.SubmitOrder(context.Background(), uuid.New(), "dr-strange", f.request(f.cbc, nil))
	if !errors.As(err, &nf) || nf.Resource != "patient" {
		t.Errorf("expected patient NotFoundError, got %v", err)
	}

	missing := &catalog.OrderableItem{ID: uuid.New()}
	_, err = f.svc.SubmitOrder(context.Background(), f.patient.ID, "dr-strange", f.request(missing, nil))
	if !errors.As(err, &nf) || nf.Resource != "orderable item" {
		t.Errorf("expected item NotFoundError, got %v", err)
	}
	if f.tx.rollbacks != 2 {
		t.Errorf("expected 2 rollbacks, got %d", f.tx.rollbacks)
	}
}

func TestSubmitOrder_StorageFailureRollsBack(t *testing.T) {
	f := newFixture()
	f.events.err = errors.New("outbox unavailable")

	_, err := f.svc.SubmitOrder(context.Background(), f.patient.ID, "dr-strange", f.request(f.cbc, nil))
	var se *apperr.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if f.tx.rollbacks != 1 || f.tx.commits != 0 {
		t.Errorf("expected rollback, got commits=%d rollbacks=%d", f.tx.commits, f.tx.rollbacks)
	}
	if got := testutil.ToFloat64(f.metrics.OrderSubmissions.WithLabelValues("error")); got != 1 {
		t.Errorf("expected error counter 1, got %v", got)
	}
}

func TestSubmitOrder_CommitFailureIsStorageError(t *testing.T) {
	f := newFixture()
	f.tx.commitErr = errors.New("connection reset")

	_, err := f.svc.SubmitOrder(context.Background(), f.patient.ID, "dr-strange", f.request(f.cbc, nil))
	var se *apperr.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %T %v", err, err)
	}
	if !errors.Is(err, f.tx.commitErr) {
		t.Errorf("expected cause to be kept, got %v", err)
	}
	if got := testutil.ToFloat64(f.metrics.OrderSubmissions.WithLabelValues("error")); got != 1 {
		t.Errorf("expected error counter 1, got %v", got)
	}
	if he := apperr.ToHTTP(err); he.Code != 500 {
		t.Errorf("expected 500, got %d", he.Code)
	}
}

func TestSubmitOrder_WithoutEvents(t *testing.T) {
	f := newFixture()
	eval := cds.NewEvaluator(f.orders, f.chart, f.chart, staticRules{}, zerolog.Nop(), nil)
	svc := NewService(f.orders, f.chart, f.items, eval, f.tx, nil, zerolog.Nop(), nil)

	res, err := svc.SubmitOrder(context.Background(), f.patient.ID, "dr-strange", f.request(f.cbc, nil))
	if err != nil || res.Outcome != OutcomeCreated {
		t.Fatalf("unexpected result %+v, %v", res, err)
	}
}

func TestSignOrder(t *testing.T) {
	f := newFixture()
	created := f.submit(t, f.cbc, nil)

	o, err := f.svc.SignOrder(context.Background(), created.Order.ID, "dr-who")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Status != StatusActive || o.SignedBy == nil || *o.SignedBy != "dr-who" || o.SignedAt == nil {
		t.Errorf("unexpected order %+v", o)
	}
	last := f.events.events[len(f.events.events)-1]
	if last.eventType != EventOrderSigned || last.payload.Actor != "dr-who" {
		t.Errorf("unexpected event %+v", last)
	}
	if got := testutil.ToFloat64(f.metrics.OrderTransitions.WithLabelValues(string(StatusActive))); got != 1 {
		t.Errorf("expected transition counted, got %v", got)
	}
}

func TestSignOrder_RejectsNonPending(t *testing.T) {
	f := newFixture()
	created := f.submit(t, f.cbc, nil)
	ctx := context.Background()
	f.svc.SignOrder(ctx, created.Order.ID, "dr-who")

	before := *f.orders.orders[created.Order.ID]
	_, err := f.svc.SignOrder(ctx, created.Order.ID, "dr-other")
	var te *apperr.TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if te.Error() != MsgSignRejected {
		t.Errorf("unexpected message %q", te.Error())
	}
	after := f.orders.orders[created.Order.ID]
	if after.Status != before.Status || *after.SignedBy != "dr-who" {
		t.Error("rejected sign must not change the order")
	}
}

func TestDiscontinueOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	pending := f.submit(t, f.cbc, nil)
	o, err := f.svc.DiscontinueOrder(ctx, pending.Order.ID, "dr-who", "   ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Status != StatusDiscontinued || *o.DiscontinuationReason != DefaultDiscontinueNote || *o.DiscontinuedBy != "dr-who" {
		t.Errorf("unexpected order %+v", o)
	}

	active := f.submit(t, f.aspirin, nil)
	f.svc.SignOrder(ctx, active.Order.ID, "dr-who")
	o, err = f.svc.DiscontinueOrder(ctx, active.Order.ID, "dr-who", "Patient discharged")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *o.DiscontinuationReason != "Patient discharged" {
		t.Errorf("unexpected reason %q", *o.DiscontinuationReason)
	}

	history, err := f.svc.OrderHistory(ctx, active.Order.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []OrderStatus{StatusPendingSignature, StatusActive, StatusDiscontinued}
	if len(history) != len(want) {
		t.Fatalf("expected %d history rows, got %d", len(want), len(history))
	}
	for i, c := range history {
		if c.ToStatus != want[i] {
			t.Errorf("history[%d] = %s, want %s", i, c.ToStatus, want[i])
		}
	}
}

func TestDiscontinueOrder_AlreadyDiscontinued(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	created := f.submit(t, f.cbc, nil)
	f.svc.DiscontinueOrder(ctx, created.Order.ID, "dr-who", "")

	_, err := f.svc.DiscontinueOrder(ctx, created.Order.ID, "dr-who", "again")
	var te *apperr.TransitionError
	if !errors.As(err, &te) || te.Error() != MsgDiscontinueRejected {
		t.Fatalf("expected discontinue rejection, got %v", err)
	}
	if _, err := f.svc.SignOrder(ctx, created.Order.ID, "dr-who"); !errors.As(err, &te) {
		t.Errorf("discontinued orders cannot be signed, got %v", err)
	}
	if *f.orders.orders[created.Order.ID].DiscontinuationReason != DefaultDiscontinueNote {
		t.Error("rejected discontinue must not change the order")
	}
}

func TestTransition_NotFound(t *testing.T) {
	f := newFixture()
	var nf *apperr.NotFoundError
	if _, err := f.svc.SignOrder(context.Background(), uuid.New(), "dr-who"); !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestSignOrder_CommitFailureIsStorageError(t *testing.T) {
	f := newFixture()
	created := f.submit(t, f.cbc, nil)
	f.tx.commitErr = errors.New("connection reset")

	_, err := f.svc.SignOrder(context.Background(), created.Order.ID, "dr-who")
	var se *apperr.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %T %v", err, err)
	}
	if got := testutil.ToFloat64(f.metrics.OrderTransitions.WithLabelValues(string(StatusActive))); got != 0 {
		t.Errorf("expected no transition counted, got %v", got)
	}
}

func TestStorageOrTyped_KeepsDomainErrors(t *testing.T) {
	nf := apperr.NotFound("order", "x")
	if got := storageOrTyped("op", nf); got != nf {
		t.Errorf("expected NotFoundError unchanged, got %v", got)
	}
	te := &apperr.TransitionError{From: "Discontinued", To: "Active", Message: MsgSignRejected}
	if got := storageOrTyped("op", fmt.Errorf("wrapped: %w", te)); !errors.As(got, new(*apperr.TransitionError)) {
		t.Errorf("expected TransitionError preserved, got %v", got)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{StatusPendingSignature, StatusActive, true},
		{StatusPendingSignature, StatusDiscontinued, true},
		{StatusActive, StatusDiscontinued, true},
		{StatusActive, StatusPendingSignature, false},
		{StatusActive, StatusActive, false},
		{StatusDiscontinued, StatusActive, false},
		{StatusDiscontinued, StatusDiscontinued, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestListOrders(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	first := f.submit(t, f.cbc, nil)
	second := f.submit(t, f.aspirin, nil)
	f.svc.SignOrder(ctx, first.Order.ID, "dr-who")

	orders, total, err := f.svc.ListOrders(ctx, f.patient.ID, "", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || orders[0].ID != second.Order.ID {
		t.Errorf("expected newest first, got total=%d first=%v", total, orders[0].ID)
	}

	active, total, _ := f.svc.ListOrders(ctx, f.patient.ID, StatusActive, 10, 0)
	if total != 1 || active[0].ID != first.Order.ID {
		t.Errorf("status filter failed: %+v", active)
	}

	var ve *apperr.ValidationError
	if _, _, err := f.svc.ListOrders(ctx, f.patient.ID, "Bogus", 10, 0); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError, got %v", err)
	}
	var nf *apperr.NotFoundError
	if _, _, err := f.svc.ListOrders(ctx, uuid.New(), "", 10, 0); !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}
