package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	domainErrors "github.com/storefrontlabs/checkout/internal/domain/errors"
	"github.com/storefrontlabs/checkout/internal/domain/inventory"
	"github.com/storefrontlabs/checkout/internal/domain/order"
	"github.com/storefrontlabs/checkout/internal/domain/outbox"
	"github.com/storefrontlabs/checkout/internal/domain/voucher"
	"github.com/storefrontlabs/checkout/internal/event"
	"github.com/storefrontlabs/checkout/internal/infrastructure/observability"
)

// LineRequest is a single requested item.
type LineRequest struct {
	ItemID   uuid.UUID
	Quantity int
}

// CreateOrderRequest holds the input for placing an order.
type CreateOrderRequest struct {
	UserID    uuid.UUID
	Items     []LineRequest
	VoucherID *uuid.UUID
}

// CreateOrderResponse holds the created pending order.
type CreateOrderResponse struct {
	Order *order.Order
	Lines []order.Line
}

// CreateOrderUseCase places a pending order and kicks off its fulfillment
// saga. The order row and the branch request events commit in one
// transaction; the outbox relay makes the events visible afterwards.
type CreateOrderUseCase struct {
	orderRepo     order.Repository
	inventoryRepo inventory.Repository
	voucherRepo   voucher.Repository
	outboxRepo    OutboxWriter
	txManager     TransactionManager
	tracker       CompletionTracker
	stuckDeadline time.Duration
	metrics       *observability.Metrics
	logger        zerolog.Logger
}

func NewCreateOrderUseCase(
	orderRepo order.Repository,
	inventoryRepo inventory.Repository,
	voucherRepo voucher.Repository,
	outboxRepo OutboxWriter,
	txManager TransactionManager,
	tracker CompletionTracker,
	stuckDeadline time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *CreateOrderUseCase {
	return &CreateOrderUseCase{
		orderRepo:     orderRepo,
		inventoryRepo: inventoryRepo,
		voucherRepo:   voucherRepo,
		outboxRepo:    outboxRepo,
		txManager:     txManager,
		tracker:       tracker,
		stuckDeadline: stuckDeadline,
		metrics:       metrics,
		logger:        logger.With().Str("component", "create_order").Logger(),
	}
}

// Execute validates the request, snapshots prices, and persists the pending
// order together with its outbox entries.
func (uc *CreateOrderUseCase) Execute(ctx context.Context, req CreateOrderRequest) (*CreateOrderResponse, error) {
	if len(req.Items) == 0 {
		return nil, domainErrors.NewValidationError("items", "cannot be empty")
	}

	// 1. Load every requested item; a missing id fails the whole order.
	ids := make([]uuid.UUID, 0, len(req.Items))
	seen := make(map[uuid.UUID]bool, len(req.Items))
	for _, li := range req.Items {
		if li.Quantity <= 0 {
			return nil, domainErrors.NewValidationError("quantity", "must be greater than 0")
		}
		if seen[li.ItemID] {
			return nil, domainErrors.NewValidationError("items", "duplicate item "+li.ItemID.String())
		}
		seen[li.ItemID] = true
		ids = append(ids, li.ItemID)
	}

	items, err := uc.inventoryRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	byID := make(map[uuid.UUID]*inventory.Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	for _, id := range ids {
		if byID[id] == nil {
			return nil, fmt.Errorf("item %s: %w", id, domainErrors.ErrItemNotFound)
		}
	}

	// 2. Price the order from the current catalog snapshot.
	var total int64
	for _, li := range req.Items {
		total += byID[li.ItemID].Price * int64(li.Quantity)
	}

	// 3. Validate the voucher without consuming it; consumption is the
	// voucher worker's job.
	var discount int64
	if req.VoucherID != nil {
		v, err := uc.voucherRepo.GetByID(ctx, *req.VoucherID)
		if err != nil {
			return nil, err
		}
		if err := v.ValidateFor(req.UserID, time.Now()); err != nil {
			return nil, err
		}
		discount = v.DiscountAmount
	}

	o, err := order.NewOrder(req.UserID, total, discount)
	if err != nil {
		return nil, err
	}

	lines := make([]order.Line, 0, len(req.Items))
	for i, li := range req.Items {
		// The voucher rides on the first line; order.VoucherID finds it there.
		var vid *uuid.UUID
		if i == 0 {
			vid = req.VoucherID
		}
		item := byID[li.ItemID]
		line, err := order.NewLine(o.ID, item.ID, item.Name, item.Price, li.Quantity, vid)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	// 4. Set up the join state before anything commits. If the transaction
	// fails the entry is cleared; if clearing fails too it expires by TTL and
	// the reconciler drops it when no order row exists.
	deadline := time.Now().Add(uc.stuckDeadline)
	if err := uc.tracker.Initialize(ctx, o.ID, req.VoucherID != nil, deadline); err != nil {
		return nil, fmt.Errorf("initialize saga state: %w", err)
	}

	err = uc.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := uc.orderRepo.Create(txCtx, o, lines); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		return uc.enqueueBranchRequests(txCtx, o, lines, req.VoucherID)
	})
	if err != nil {
		if clearErr := uc.tracker.Clear(ctx, o.ID); clearErr != nil {
			uc.logger.Warn().Err(clearErr).Str("order_id", o.ID.String()).Msg("clear saga state failed")
		}
		return nil, err
	}

	uc.metrics.OrdersTotal.WithLabelValues(string(order.StatusPending)).Inc()
	uc.metrics.OrderAmount.WithLabelValues(string(order.StatusPending)).Observe(float64(o.FinalAmount))
	uc.logger.Info().
		Str("order_id", o.ID.String()).
		Str("user_id", o.UserID.String()).
		Int64("final_amount", o.FinalAmount).
		Bool("voucher", req.VoucherID != nil).
		Msg("order placed")

	return &CreateOrderResponse{Order: o, Lines: lines}, nil
}

// enqueueBranchRequests writes the reservation request, and the voucher
// request when present, into the outbox.
func (uc *CreateOrderUseCase) enqueueBranchRequests(ctx context.Context, o *order.Order, lines []order.Line, voucherID *uuid.UUID) error {
	items := make([]event.ItemQuantity, 0, len(lines))
	for itemID, qty := range order.ItemQuantities(lines) {
		items = append(items, event.ItemQuantity{ItemID: itemID, Quantity: qty})
	}

	resEnv, err := event.NewEnvelope(o.ID, event.TypeReservationRequested, event.ReservationRequested{OrderID: o.ID, Items: items})
	if err != nil {
		return err
	}
	if err := uc.outboxRepo.Insert(ctx, outbox.NewEntry(event.StreamReservation, resEnv)); err != nil {
		return fmt.Errorf("enqueue reservation request: %w", err)
	}

	if voucherID == nil {
		return nil
	}
	vchEnv, err := event.NewEnvelope(o.ID, event.TypeVoucherRequested, event.VoucherRequested{OrderID: o.ID, VoucherID: *voucherID})
	if err != nil {
		return err
	}
	if err := uc.outboxRepo.Insert(ctx, outbox.NewEntry(event.StreamVoucher, vchEnv)); err != nil {
		return fmt.Errorf("enqueue voucher request: %w", err)
	}
	return nil
}
