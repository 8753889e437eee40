package testutil

import (
	"time"

	"github.com/google/uuid"
	"github.com/storefrontlabs/checkout/internal/domain/inventory"
	"github.com/storefrontlabs/checkout/internal/domain/order"
	"github.com/storefrontlabs/checkout/internal/domain/voucher"
	"github.com/storefrontlabs/checkout/internal/domain/wallet"
)

// NewTestOrder creates a pending order with a single line, optionally backed
// by a voucher.
func NewTestOrder(userID uuid.UUID, total, discount int64, itemID uuid.UUID, qty int, voucherID *uuid.UUID) (*order.Order, []order.Line) {
	o, err := order.NewOrder(userID, total, discount)
	if err != nil {
		panic(err)
	}
	line, err := order.NewLine(o.ID, itemID, "test item", total/int64(qty), qty, voucherID)
	if err != nil {
		panic(err)
	}
	return o, []order.Line{line}
}

// NewTestItem creates a catalog item with stock.
func NewTestItem(name string, price int64, quantity int) *inventory.Item {
	item, err := inventory.NewItem(name, price, quantity)
	if err != nil {
		panic(err)
	}
	return item
}

// NewTestVoucher creates an issued voucher valid for 24 hours.
func NewTestVoucher(userID uuid.UUID, discount int64) *voucher.UserVoucher {
	v, err := voucher.NewUserVoucher(userID, discount, time.Now().Add(24*time.Hour))
	if err != nil {
		panic(err)
	}
	return v
}

// NewTestWallet creates a wallet with the given balance.
func NewTestWallet(userID uuid.UUID, balance int64) *wallet.Wallet {
	w, err := wallet.NewWallet(userID, balance)
	if err != nil {
		panic(err)
	}
	return w
}

func UUIDPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
