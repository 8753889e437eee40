package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/storefrontlabs/checkout/internal/domain/errors"
)

// Status represents the order status in the state machine
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

// Order is the durable record of an order's identity, status and monetary
// breakdown. Its status is mutated only by the fulfillment coordinator after
// creation.
type Order struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Status          Status
	TotalAmount     int64
	VoucherDiscount int64
	FinalAmount     int64
	FailureReason   *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PaidAt          *time.Time
}

// Line is a single order line. Immutable once written; created together with
// the order in one batch.
type Line struct {
	OrderID   uuid.UUID
	ItemID    uuid.UUID
	Name      string
	UnitPrice int64
	Quantity  int
	VoucherID *uuid.UUID
}

// NewOrder creates a pending order. FinalAmount is total minus discount,
// floored at zero.
func NewOrder(userID uuid.UUID, totalAmount, voucherDiscount int64) (*Order, error) {
	if totalAmount < 0 {
		return nil, errors.NewValidationError("total_amount", "cannot be negative")
	}
	if voucherDiscount < 0 {
		return nil, errors.NewValidationError("voucher_discount", "cannot be negative")
	}

	final := totalAmount - voucherDiscount
	if final < 0 {
		final = 0
	}

	now := time.Now()
	return &Order{
		ID:              uuid.New(),
		UserID:          userID,
		Status:          StatusPending,
		TotalAmount:     totalAmount,
		VoucherDiscount: voucherDiscount,
		FinalAmount:     final,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// NewLine creates an order line with a unit price snapshot.
func NewLine(orderID, itemID uuid.UUID, name string, unitPrice int64, quantity int, voucherID *uuid.UUID) (Line, error) {
	if quantity <= 0 {
		return Line{}, errors.NewValidationError("quantity", "must be greater than 0")
	}
	if unitPrice < 0 {
		return Line{}, errors.NewValidationError("unit_price", "cannot be negative")
	}
	return Line{
		OrderID:   orderID,
		ItemID:    itemID,
		Name:      name,
		UnitPrice: unitPrice,
		Quantity:  quantity,
		VoucherID: voucherID,
	}, nil
}

// CanTransitionTo checks if the order can transition to the given status
func (o *Order) CanTransitionTo(newStatus Status) bool {
	transitions := map[Status][]Status{
		StatusPending: {
			StatusPaid,
			StatusFailed,
		},
		StatusPaid:   {}, // Terminal state
		StatusFailed: {}, // Terminal state
	}

	allowed, exists := transitions[o.Status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo transitions the order to a new status
func (o *Order) TransitionTo(newStatus Status) error {
	if !o.CanTransitionTo(newStatus) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(o.Status)+" to "+string(newStatus),
			errors.ErrInvalidStateTransition,
		)
	}

	o.Status = newStatus
	o.UpdatedAt = time.Now()
	return nil
}

// MarkPaid transitions the order to paid status
func (o *Order) MarkPaid() error {
	if err := o.TransitionTo(StatusPaid); err != nil {
		return err
	}
	now := time.Now()
	o.PaidAt = &now
	return nil
}

// MarkFailed transitions the order to failed status with the reason recorded
func (o *Order) MarkFailed(reason string) error {
	if err := o.TransitionTo(StatusFailed); err != nil {
		return err
	}
	o.FailureReason = &reason
	return nil
}

// IsTerminal checks if the order is in a terminal state
func (o *Order) IsTerminal() bool {
	return o.Status == StatusPaid || o.Status == StatusFailed
}

// VoucherID returns the voucher attached to the order's lines, if any.
func VoucherID(lines []Line) *uuid.UUID {
	for _, l := range lines {
		if l.VoucherID != nil {
			return l.VoucherID
		}
	}
	return nil
}

// ItemQuantities collapses order lines into item id → quantity pairs.
func ItemQuantities(lines []Line) map[uuid.UUID]int {
	m := make(map[uuid.UUID]int, len(lines))
	for _, l := range lines {
		m[l.ItemID] += l.Quantity
	}
	return m
}
