package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stream names. Requests fan out on their own streams so the reservation and
// voucher workers scale independently; every worker outcome lands on the
// outcome stream consumed by the fulfillment coordinator.
const (
	StreamReservation  = "orders:reservation"
	StreamVoucher      = "orders:voucher"
	StreamOutcome      = "orders:outcome"
	StreamPayment      = "orders:payment"
	StreamCompleted    = "orders:completed"
	StreamCompensation = "orders:compensation"
	StreamAnalytics    = "orders:analytics"
	StreamDLQ          = "orders:dlq"
)

// Type tags an envelope's payload.
type Type string

const (
	TypeReservationRequested Type = "reservation.requested"
	TypeReservationSucceeded Type = "reservation.succeeded"
	TypeReservationFailed    Type = "reservation.failed"
	TypeVoucherRequested     Type = "voucher.requested"
	TypeVoucherConsumed      Type = "voucher.consumed"
	TypeVoucherFailed        Type = "voucher.failed"
	TypePaymentRequested     Type = "payment.requested"
	TypeOrderCompleted       Type = "order.completed"
	TypeCompensateStock      Type = "compensate.stock"
	TypeCompensateVoucher    Type = "compensate.voucher"
	TypeOrderData            Type = "order.data"
	TypeOrderStuck           Type = "order.stuck"
)

// Envelope is the wire form of every saga message: order id for partitioning
// and logging, a type tag for dispatch, and a JSON payload.
type Envelope struct {
	OrderID    uuid.UUID       `json:"order_id"`
	Type       Type            `json:"event_type"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// ItemQuantity pairs an item with a reserved or restored quantity.
type ItemQuantity struct {
	ItemID   uuid.UUID `json:"item_id"`
	Quantity int       `json:"quantity"`
}

// --- Payloads ---

type ReservationRequested struct {
	OrderID uuid.UUID      `json:"order_id"`
	Items   []ItemQuantity `json:"items"`
}

type ReservationSucceeded struct {
	OrderID uuid.UUID `json:"order_id"`
}

type ReservationFailed struct {
	OrderID uuid.UUID `json:"order_id"`
	Reason  string    `json:"reason"`
}

type VoucherRequested struct {
	OrderID   uuid.UUID `json:"order_id"`
	VoucherID uuid.UUID `json:"voucher_id"`
}

type VoucherConsumed struct {
	OrderID uuid.UUID `json:"order_id"`
}

type VoucherFailed struct {
	OrderID uuid.UUID `json:"order_id"`
	Reason  string    `json:"reason"`
}

type PaymentRequested struct {
	OrderID     uuid.UUID `json:"order_id"`
	UserID      uuid.UUID `json:"user_id"`
	FinalAmount int64     `json:"final_amount"`
}

type OrderCompleted struct {
	OrderID uuid.UUID `json:"order_id"`
}

type CompensateStock struct {
	OrderID uuid.UUID      `json:"order_id"`
	Items   []ItemQuantity `json:"items"`
}

type CompensateVoucher struct {
	OrderID   uuid.UUID `json:"order_id"`
	VoucherID uuid.UUID `json:"voucher_id"`
}

type OrderData struct {
	OrderID     uuid.UUID `json:"order_id"`
	UserID      uuid.UUID `json:"user_id"`
	FinalAmount int64     `json:"final_amount"`
	PaidAt      time.Time `json:"paid_at"`
}

type OrderStuck struct {
	OrderID   uuid.UUID `json:"order_id"`
	ExpiredAt time.Time `json:"expired_at"`
}

// NewEnvelope wraps a payload into an envelope for the given order.
func NewEnvelope(orderID uuid.UUID, typ Type, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Envelope{
		OrderID:    orderID,
		Type:       typ,
		Payload:    raw,
		OccurredAt: time.Now(),
	}, nil
}

// Decode unmarshals the envelope payload into dst.
func (e Envelope) Decode(dst any) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}
