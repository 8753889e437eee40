package fulfillment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/storefrontlabs/checkout/internal/application/fulfillment"
	domainErrors "github.com/storefrontlabs/checkout/internal/domain/errors"
	"github.com/storefrontlabs/checkout/internal/domain/order"
	"github.com/storefrontlabs/checkout/internal/event"
	"github.com/storefrontlabs/checkout/internal/infrastructure/observability"
	"github.com/storefrontlabs/checkout/internal/testutil"
)

type coordinatorFixture struct {
	orderRepo *testutil.MockOrderRepository
	tracker   *testutil.MockTracker
	publisher *testutil.MockPublisher
	payment   *testutil.MockPaymentStep
	coord     *fulfillment.Coordinator
}

func newCoordinatorFixture() *coordinatorFixture {
	orderRepo := testutil.NewMockOrderRepository()
	tracker := testutil.NewMockTracker()
	publisher := testutil.NewMockPublisher()
	payment := testutil.NewMockPaymentStep()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())

	coord := fulfillment.NewCoordinator(
		orderRepo, tracker, publisher,
		testutil.NewMockTransactionManager(),
		payment, metrics, zerolog.Nop(),
	)
	return &coordinatorFixture{
		orderRepo: orderRepo,
		tracker:   tracker,
		publisher: publisher,
		payment:   payment,
		coord:     coord,
	}
}

// seedOrder stores a pending order with one line and initializes the tracker.
func (f *coordinatorFixture) seedOrder(t *testing.T, total, discount int64, voucherID *uuid.UUID) *order.Order {
	t.Helper()
	o, lines := testutil.NewTestOrder(uuid.New(), total, discount, uuid.New(), 2, voucherID)
	f.orderRepo.AddOrder(o, lines)
	if err := f.tracker.Initialize(context.Background(), o.ID, voucherID != nil, time.Now().Add(10*time.Minute)); err != nil {
		t.Fatalf("initialize tracker: %v", err)
	}
	return o
}

func envelope(t *testing.T, orderID uuid.UUID, typ event.Type, payload any) event.Envelope {
	t.Helper()
	env, err := event.NewEnvelope(orderID, typ, payload)
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	return env
}

func TestCoordinator_JoinReservationThenVoucher(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture()
	voucherID := uuid.New()
	o := f.seedOrder(t, 40_000, 5_000, &voucherID)

	err := f.coord.HandleReservationSucceeded(ctx, envelope(t, o.ID, event.TypeReservationSucceeded, event.ReservationSucceeded{OrderID: o.ID}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(f.publisher.Published(event.StreamPayment)); n != 0 {
		t.Fatalf("payment requested with only one branch done, got %d events", n)
	}

	err = f.coord.HandleVoucherConsumed(ctx, envelope(t, o.ID, event.TypeVoucherConsumed, event.VoucherConsumed{OrderID: o.ID}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payments := f.publisher.Published(event.StreamPayment)
	if len(payments) != 1 {
		t.Fatalf("expected exactly one payment request, got %d", len(payments))
	}
	var req event.PaymentRequested
	if err := payments[0].Decode(&req); err != nil {
		t.Fatalf("decode payment request: %v", err)
	}
	if req.FinalAmount != 35_000 {
		t.Errorf("expected final amount 35000, got %d", req.FinalAmount)
	}
	if req.UserID != o.UserID {
		t.Errorf("payment request user mismatch")
	}
}

func TestCoordinator_JoinVoucherThenReservation(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture()
	voucherID := uuid.New()
	o := f.seedOrder(t, 40_000, 5_000, &voucherID)

	if err := f.coord.HandleVoucherConsumed(ctx, envelope(t, o.ID, event.TypeVoucherConsumed, event.VoucherConsumed{OrderID: o.ID})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.coord.HandleReservationSucceeded(ctx, envelope(t, o.ID, event.TypeReservationSucceeded, event.ReservationSucceeded{OrderID: o.ID})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := len(f.publisher.Published(event.StreamPayment)); n != 1 {
		t.Fatalf("expected exactly one payment request, got %d", n)
	}
}

func TestCoordinator_NoVoucherOrder(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture()
	o := f.seedOrder(t, 40_000, 0, nil)

	if err := f.coord.HandleReservationSucceeded(ctx, envelope(t, o.ID, event.TypeReservationSucceeded, event.ReservationSucceeded{OrderID: o.ID})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payments := f.publisher.Published(event.StreamPayment)
	if len(payments) != 1 {
		t.Fatalf("reservation alone should trigger payment for a no-voucher order, got %d events", len(payments))
	}
	var req event.PaymentRequested
	if err := payments[0].Decode(&req); err != nil {
		t.Fatalf("decode payment request: %v", err)
	}
	if req.FinalAmount != 40_000 {
		t.Errorf("expected final amount 40000, got %d", req.FinalAmount)
	}
}

func TestCoordinator_RedeliveredBranchDoesNotRepay(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture()
	voucherID := uuid.New()
	o := f.seedOrder(t, 40_000, 5_000, &voucherID)

	resEnv := envelope(t, o.ID, event.TypeReservationSucceeded, event.ReservationSucceeded{OrderID: o.ID})
	vchEnv := envelope(t, o.ID, event.TypeVoucherConsumed, event.VoucherConsumed{OrderID: o.ID})

	for _, env := range []event.Envelope{resEnv, vchEnv, resEnv, vchEnv} {
		var err error
		switch env.Type {
		case event.TypeReservationSucceeded:
			err = f.coord.HandleReservationSucceeded(ctx, env)
		case event.TypeVoucherConsumed:
			err = f.coord.HandleVoucherConsumed(ctx, env)
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if n := len(f.publisher.Published(event.StreamPayment)); n != 1 {
		t.Fatalf("redelivery must not duplicate payment requests, got %d", n)
	}
}

func TestCoordinator_ReservationFailedAfterVoucherConsumed(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture()
	voucherID := uuid.New()
	o := f.seedOrder(t, 40_000, 5_000, &voucherID)

	// Voucher branch succeeded first.
	if err := f.coord.HandleVoucherConsumed(ctx, envelope(t, o.ID, event.TypeVoucherConsumed, event.VoucherConsumed{OrderID: o.ID})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := f.coord.HandleReservationFailed(ctx, envelope(t, o.ID, event.TypeReservationFailed, event.ReservationFailed{OrderID: o.ID, Reason: "insufficient stock"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated := f.orderRepo.GetOrderByID(o.ID)
	if updated.Status != order.StatusFailed {
		t.Fatalf("expected failed order, got %s", updated.Status)
	}
	if updated.FailureReason == nil || *updated.FailureReason != "insufficient stock" {
		t.Errorf("failure reason not recorded")
	}

	comps := f.publisher.Published(event.StreamCompensation)
	if len(comps) != 1 {
		t.Fatalf("expected one compensation, got %d", len(comps))
	}
	if comps[0].Type != event.TypeCompensateVoucher {
		t.Errorf("expected voucher compensation, got %s", comps[0].Type)
	}
	var comp event.CompensateVoucher
	if err := comps[0].Decode(&comp); err != nil {
		t.Fatalf("decode compensation: %v", err)
	}
	if comp.VoucherID != voucherID {
		t.Errorf("compensation names wrong voucher")
	}
}

func TestCoordinator_ReservationFailedBeforeVoucherOutcome(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture()
	voucherID := uuid.New()
	o := f.seedOrder(t, 40_000, 5_000, &voucherID)

	err := f.coord.HandleReservationFailed(ctx, envelope(t, o.ID, event.TypeReservationFailed, event.ReservationFailed{OrderID: o.ID, Reason: "insufficient stock"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// No compensation yet: the voucher branch has not reported.
	if n := len(f.publisher.Published(event.StreamCompensation)); n != 0 {
		t.Fatalf("expected no compensation before voucher outcome, got %d", n)
	}

	// The late voucher-consumed on the failed order triggers it.
	if err := f.coord.HandleVoucherConsumed(ctx, envelope(t, o.ID, event.TypeVoucherConsumed, event.VoucherConsumed{OrderID: o.ID})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	comps := f.publisher.Published(event.StreamCompensation)
	if len(comps) != 1 || comps[0].Type != event.TypeCompensateVoucher {
		t.Fatalf("late voucher branch must be compensated, got %v", comps)
	}
	// Payment never started.
	if n := len(f.publisher.Published(event.StreamPayment)); n != 0 {
		t.Fatalf("payment requested for a failed order")
	}
}

func TestCoordinator_VoucherFailedAfterReservationSucceeded(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture()
	voucherID := uuid.New()
	o := f.seedOrder(t, 40_000, 5_000, &voucherID)

	if err := f.coord.HandleReservationSucceeded(ctx, envelope(t, o.ID, event.TypeReservationSucceeded, event.ReservationSucceeded{OrderID: o.ID})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := f.coord.HandleVoucherFailed(ctx, envelope(t, o.ID, event.TypeVoucherFailed, event.VoucherFailed{OrderID: o.ID, Reason: "voucher already used"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated := f.orderRepo.GetOrderByID(o.ID)
	if updated.Status != order.StatusFailed {
		t.Fatalf("expected failed order, got %s", updated.Status)
	}

	comps := f.publisher.Published(event.StreamCompensation)
	if len(comps) != 1 || comps[0].Type != event.TypeCompensateStock {
		t.Fatalf("expected stock compensation, got %v", comps)
	}
	var comp event.CompensateStock
	if err := comps[0].Decode(&comp); err != nil {
		t.Fatalf("decode compensation: %v", err)
	}
	if len(comp.Items) != 1 || comp.Items[0].Quantity != 2 {
		t.Errorf("compensation must restore the reserved quantities, got %+v", comp.Items)
	}
}

func TestCoordinator_PaymentSuccess(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture()
	o := f.seedOrder(t, 40_000, 5_000, testutil.UUIDPtr(uuid.New()))

	err := f.coord.HandlePaymentRequested(ctx, envelope(t, o.ID, event.TypePaymentRequested, event.PaymentRequested{
		OrderID: o.ID, UserID: o.UserID, FinalAmount: o.FinalAmount,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated := f.orderRepo.GetOrderByID(o.ID)
	if updated.Status != order.StatusPaid {
		t.Fatalf("expected paid order, got %s", updated.Status)
	}
	if updated.PaidAt == nil {
		t.Error("paid timestamp not set")
	}

	debits := f.payment.Debits()
	if len(debits) != 1 || debits[0] != 35_000 {
		t.Fatalf("expected a single debit of 35000, got %v", debits)
	}

	completed := f.publisher.Published(event.StreamCompleted)
	if len(completed) != 1 || completed[0].Type != event.TypeOrderCompleted {
		t.Fatalf("expected order-completed event, got %v", completed)
	}
	if f.tracker.Exists(o.ID) {
		t.Error("tracker state not cleared after payment")
	}
}

func TestCoordinator_PaymentFailureCompensatesBothBranches(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture()
	voucherID := uuid.New()
	o := f.seedOrder(t, 40_000, 5_000, &voucherID)

	f.payment.DebitFunc = func(ctx context.Context, userID uuid.UUID, amount int64) error {
		return domainErrors.ErrInsufficientBalance
	}

	err := f.coord.HandlePaymentRequested(ctx, envelope(t, o.ID, event.TypePaymentRequested, event.PaymentRequested{
		OrderID: o.ID, UserID: o.UserID, FinalAmount: o.FinalAmount,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated := f.orderRepo.GetOrderByID(o.ID)
	if updated.Status != order.StatusFailed {
		t.Fatalf("expected failed order, got %s", updated.Status)
	}

	comps := f.publisher.Published(event.StreamCompensation)
	if len(comps) != 2 {
		t.Fatalf("expected compensation for both branches, got %d", len(comps))
	}
	types := map[event.Type]bool{}
	for _, c := range comps {
		types[c.Type] = true
	}
	if !types[event.TypeCompensateStock] || !types[event.TypeCompensateVoucher] {
		t.Errorf("missing compensation kinds: %v", types)
	}
	if n := len(f.publisher.Published(event.StreamCompleted)); n != 0 {
		t.Errorf("completed event emitted for a failed payment")
	}
}

func TestCoordinator_RedeliveredPaymentRequestIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture()
	o := f.seedOrder(t, 40_000, 0, nil)

	env := envelope(t, o.ID, event.TypePaymentRequested, event.PaymentRequested{
		OrderID: o.ID, UserID: o.UserID, FinalAmount: o.FinalAmount,
	})

	if err := f.coord.HandlePaymentRequested(ctx, env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.coord.HandlePaymentRequested(ctx, env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := len(f.payment.Debits()); n != 1 {
		t.Fatalf("redelivered payment request must not debit again, got %d debits", n)
	}
	if n := len(f.publisher.Published(event.StreamCompleted)); n != 1 {
		t.Fatalf("expected one completed event, got %d", n)
	}
}

func TestCoordinator_BranchOutcomeOnPaidOrderIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture()
	o := f.seedOrder(t, 40_000, 0, nil)
	if err := o.MarkPaid(); err != nil {
		t.Fatal(err)
	}

	if err := f.coord.HandleReservationSucceeded(ctx, envelope(t, o.ID, event.TypeReservationSucceeded, event.ReservationSucceeded{OrderID: o.ID})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(f.publisher.Published(event.StreamPayment)); n != 0 {
		t.Fatalf("paid order must ignore branch outcomes, got %d events", n)
	}
	if n := len(f.publisher.Published(event.StreamCompensation)); n != 0 {
		t.Fatalf("paid order must not be compensated, got %d events", n)
	}
}

func TestCoordinator_FailedHandlerOnTerminalOrderIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture()
	o := f.seedOrder(t, 40_000, 0, nil)
	if err := o.MarkFailed("insufficient stock"); err != nil {
		t.Fatal(err)
	}

	err := f.coord.HandleReservationFailed(ctx, envelope(t, o.ID, event.TypeReservationFailed, event.ReservationFailed{OrderID: o.ID, Reason: "insufficient stock"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated := f.orderRepo.GetOrderByID(o.ID)
	if *updated.FailureReason != "insufficient stock" {
		t.Errorf("terminal order mutated on redelivery")
	}
	if n := len(f.publisher.Published(event.StreamCompensation)); n != 0 {
		t.Fatalf("terminal order must not re-compensate, got %d events", n)
	}
}

func TestCoordinator_Register(t *testing.T) {
	f := newCoordinatorFixture()
	r := event.NewRegistry()
	f.coord.Register(r)

	for _, typ := range []event.Type{
		event.TypeReservationSucceeded,
		event.TypeReservationFailed,
		event.TypeVoucherConsumed,
		event.TypeVoucherFailed,
		event.TypePaymentRequested,
	} {
		if !r.Handles(typ) {
			t.Errorf("registry missing handler for %s", typ)
		}
	}
}

// A branch failure on another instance can commit Failed between this
// instance's status check and its tracker mark: the failure handler reads the
// branch flag as unset and skips the sibling compensation, so the success
// handler must pick it up after the mark reports not-ready.
func TestCoordinator_VoucherSuccessRacingReservationFailureCompensates(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture()
	voucherID := uuid.New()
	o := f.seedOrder(t, 40_000, 5_000, &voucherID)

	// Run the reservation failure to completion inside the window between
	// HandleVoucherConsumed's status check and its mark.
	f.tracker.MarkVoucherDoneFunc = func(ctx context.Context, orderID uuid.UUID) (bool, error) {
		f.tracker.MarkVoucherDoneFunc = nil
		err := f.coord.HandleReservationFailed(ctx, envelope(t, o.ID, event.TypeReservationFailed, event.ReservationFailed{OrderID: o.ID, Reason: "insufficient stock"}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// The failure handler saw the voucher flag unset and cleared the
		// tracker; the interrupted mark now lands on the cleared state.
		return f.tracker.MarkVoucherDone(ctx, orderID)
	}

	err := f.coord.HandleVoucherConsumed(ctx, envelope(t, o.ID, event.TypeVoucherConsumed, event.VoucherConsumed{OrderID: o.ID}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated := f.orderRepo.GetOrderByID(o.ID)
	if updated.Status != order.StatusFailed {
		t.Fatalf("expected failed order, got %s", updated.Status)
	}

	comps := f.publisher.Published(event.StreamCompensation)
	if len(comps) != 1 {
		t.Fatalf("expected exactly one compensation, got %d", len(comps))
	}
	var comp event.CompensateVoucher
	if comps[0].Type != event.TypeCompensateVoucher {
		t.Fatalf("expected voucher compensation, got %s", comps[0].Type)
	}
	if err := comps[0].Decode(&comp); err != nil {
		t.Fatalf("decode compensation: %v", err)
	}
	if comp.VoucherID != voucherID {
		t.Errorf("compensation names wrong voucher")
	}
	if f.tracker.Exists(o.ID) {
		t.Error("tracker state recreated by the interrupted mark was not cleared")
	}
	if n := len(f.publisher.Published(event.StreamPayment)); n != 0 {
		t.Errorf("payment requested for a failed order")
	}
}

func TestCoordinator_ReservationSuccessRacingVoucherFailureCompensates(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture()
	voucherID := uuid.New()
	o := f.seedOrder(t, 40_000, 5_000, &voucherID)

	f.tracker.MarkReservationDoneFunc = func(ctx context.Context, orderID uuid.UUID) (bool, error) {
		f.tracker.MarkReservationDoneFunc = nil
		err := f.coord.HandleVoucherFailed(ctx, envelope(t, o.ID, event.TypeVoucherFailed, event.VoucherFailed{OrderID: o.ID, Reason: "voucher expired"}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return f.tracker.MarkReservationDone(ctx, orderID)
	}

	err := f.coord.HandleReservationSucceeded(ctx, envelope(t, o.ID, event.TypeReservationSucceeded, event.ReservationSucceeded{OrderID: o.ID}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	comps := f.publisher.Published(event.StreamCompensation)
	if len(comps) != 1 || comps[0].Type != event.TypeCompensateStock {
		t.Fatalf("expected exactly one stock compensation, got %v", comps)
	}
	var comp event.CompensateStock
	if err := comps[0].Decode(&comp); err != nil {
		t.Fatalf("decode compensation: %v", err)
	}
	if len(comp.Items) != 1 || comp.Items[0].Quantity != 2 {
		t.Errorf("compensation does not cover the reserved quantities: %+v", comp.Items)
	}
}

func TestCoordinator_TransientPaymentErrorLeavesOrderPending(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture()
	o := f.seedOrder(t, 40_000, 0, nil)

	f.payment.DebitFunc = func(ctx context.Context, userID uuid.UUID, amount int64) error {
		return errors.New("connection reset by peer")
	}

	env := envelope(t, o.ID, event.TypePaymentRequested, event.PaymentRequested{
		OrderID: o.ID, UserID: o.UserID, FinalAmount: o.FinalAmount,
	})

	if err := f.coord.HandlePaymentRequested(ctx, env); err == nil {
		t.Fatal("expected error so the broker redelivers the payment request")
	}

	updated := f.orderRepo.GetOrderByID(o.ID)
	if updated.Status != order.StatusPending {
		t.Fatalf("transient debit error must not settle the order, got %s", updated.Status)
	}
	if n := len(f.publisher.Published(event.StreamCompensation)); n != 0 {
		t.Fatalf("transient debit error must not compensate, got %d events", n)
	}

	// Redelivery with the infrastructure healthy completes the payment.
	f.payment.DebitFunc = nil
	if err := f.coord.HandlePaymentRequested(ctx, env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.orderRepo.GetOrderByID(o.ID).Status; got != order.StatusPaid {
		t.Fatalf("expected paid order after redelivery, got %s", got)
	}
}
