package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	domainErrors "github.com/storefrontlabs/checkout/internal/domain/errors"
	"github.com/storefrontlabs/checkout/internal/domain/inventory"
	"github.com/storefrontlabs/checkout/internal/domain/order"
	"github.com/storefrontlabs/checkout/internal/domain/outbox"
	"github.com/storefrontlabs/checkout/internal/domain/voucher"
	"github.com/storefrontlabs/checkout/internal/domain/wallet"
	"github.com/storefrontlabs/checkout/internal/event"
	"github.com/storefrontlabs/checkout/internal/lock"
)

// --- Order Repository Mock ---

// MockOrderRepository is a mock implementation of order.Repository.
type MockOrderRepository struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*order.Order
	lines  map[uuid.UUID][]order.Line

	CreateFunc       func(ctx context.Context, o *order.Order, lines []order.Line) error
	GetByIDFunc      func(ctx context.Context, id uuid.UUID) (*order.Order, error)
	GetForUpdateFunc func(ctx context.Context, id uuid.UUID) (*order.Order, error)
	UpdateFunc       func(ctx context.Context, o *order.Order) error
	ListLinesFunc    func(ctx context.Context, orderID uuid.UUID) ([]order.Line, error)
	ListByUserFunc   func(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*order.Order, error)
}

func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make(map[uuid.UUID]*order.Order),
		lines:  make(map[uuid.UUID][]order.Line),
	}
}

// AddOrder pre-populates the mock with an order and its lines.
func (m *MockOrderRepository) AddOrder(o *order.Order, lines []order.Line) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	m.lines[o.ID] = lines
}

func (m *MockOrderRepository) Create(ctx context.Context, o *order.Order, lines []order.Line) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, o, lines)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	m.lines[o.ID] = lines
	return nil
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domainErrors.ErrOrderNotFound
	}
	return o, nil
}

func (m *MockOrderRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	if m.GetForUpdateFunc != nil {
		return m.GetForUpdateFunc(ctx, id)
	}
	return m.GetByID(ctx, id)
}

func (m *MockOrderRepository) Update(ctx context.Context, o *order.Order) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; !ok {
		return domainErrors.ErrOrderNotFound
	}
	m.orders[o.ID] = o
	return nil
}

func (m *MockOrderRepository) ListLines(ctx context.Context, orderID uuid.UUID) ([]order.Line, error) {
	if m.ListLinesFunc != nil {
		return m.ListLinesFunc(ctx, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lines[orderID], nil
}

func (m *MockOrderRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*order.Order, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, userID, limit, offset)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*order.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			result = append(result, o)
		}
	}
	return result, nil
}

// GetOrderByID returns the stored order (test helper, no context needed).
func (m *MockOrderRepository) GetOrderByID(id uuid.UUID) *order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id]
}

// --- Inventory Repository Mock ---

// MockInventoryRepository is a mock implementation of inventory.Repository.
type MockInventoryRepository struct {
	mu    sync.Mutex
	items map[uuid.UUID]*inventory.Item

	CreateFunc       func(ctx context.Context, item *inventory.Item) error
	GetByIDFunc      func(ctx context.Context, id uuid.UUID) (*inventory.Item, error)
	GetByIDsFunc     func(ctx context.Context, ids []uuid.UUID) ([]*inventory.Item, error)
	GetForUpdateFunc func(ctx context.Context, id uuid.UUID) (*inventory.Item, error)
	UpdateFunc       func(ctx context.Context, item *inventory.Item) error
}

func NewMockInventoryRepository() *MockInventoryRepository {
	return &MockInventoryRepository{items: make(map[uuid.UUID]*inventory.Item)}
}

// AddItem pre-populates the mock with an item.
func (m *MockInventoryRepository) AddItem(item *inventory.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
}

func (m *MockInventoryRepository) Create(ctx context.Context, item *inventory.Item) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, item)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
	return nil
}

func (m *MockInventoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*inventory.Item, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, domainErrors.ErrItemNotFound
	}
	return item, nil
}

func (m *MockInventoryRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*inventory.Item, error) {
	if m.GetByIDsFunc != nil {
		return m.GetByIDsFunc(ctx, ids)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*inventory.Item
	for _, id := range ids {
		if item, ok := m.items[id]; ok {
			result = append(result, item)
		}
	}
	return result, nil
}

func (m *MockInventoryRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*inventory.Item, error) {
	if m.GetForUpdateFunc != nil {
		return m.GetForUpdateFunc(ctx, id)
	}
	return m.GetByID(ctx, id)
}

func (m *MockInventoryRepository) Update(ctx context.Context, item *inventory.Item) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, item)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[item.ID]; !ok {
		return domainErrors.ErrItemNotFound
	}
	m.items[item.ID] = item
	return nil
}

// GetItemByID returns the stored item (test helper, no context needed).
func (m *MockInventoryRepository) GetItemByID(id uuid.UUID) *inventory.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id]
}

// --- Voucher Repository Mock ---

// MockVoucherRepository is a mock implementation of voucher.Repository.
type MockVoucherRepository struct {
	mu       sync.Mutex
	vouchers map[uuid.UUID]*voucher.UserVoucher

	CreateFunc   func(ctx context.Context, v *voucher.UserVoucher) error
	GetByIDFunc  func(ctx context.Context, id uuid.UUID) (*voucher.UserVoucher, error)
	MarkUsedFunc func(ctx context.Context, id, orderID uuid.UUID) (bool, error)
	RestoreFunc  func(ctx context.Context, id, orderID uuid.UUID) error
}

func NewMockVoucherRepository() *MockVoucherRepository {
	return &MockVoucherRepository{vouchers: make(map[uuid.UUID]*voucher.UserVoucher)}
}

// AddVoucher pre-populates the mock with a voucher.
func (m *MockVoucherRepository) AddVoucher(v *voucher.UserVoucher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vouchers[v.ID] = v
}

func (m *MockVoucherRepository) Create(ctx context.Context, v *voucher.UserVoucher) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, v)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vouchers[v.ID] = v
	return nil
}

func (m *MockVoucherRepository) GetByID(ctx context.Context, id uuid.UUID) (*voucher.UserVoucher, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vouchers[id]
	if !ok {
		return nil, domainErrors.ErrVoucherNotFound
	}
	return v, nil
}

func (m *MockVoucherRepository) MarkUsed(ctx context.Context, id, orderID uuid.UUID) (bool, error) {
	if m.MarkUsedFunc != nil {
		return m.MarkUsedFunc(ctx, id, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vouchers[id]
	if !ok {
		return false, domainErrors.ErrVoucherNotFound
	}
	if v.Status != voucher.StatusIssued || v.IsExpired(time.Now()) {
		return false, nil
	}
	v.Status = voucher.StatusUsed
	v.UsedOrderID = &orderID
	return true, nil
}

func (m *MockVoucherRepository) Restore(ctx context.Context, id, orderID uuid.UUID) error {
	if m.RestoreFunc != nil {
		return m.RestoreFunc(ctx, id, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vouchers[id]
	if !ok {
		return nil
	}
	if v.Status == voucher.StatusUsed && v.UsedOrderID != nil && *v.UsedOrderID == orderID {
		v.Status = voucher.StatusIssued
		v.UsedOrderID = nil
	}
	return nil
}

// GetVoucherByID returns the stored voucher (test helper, no context needed).
func (m *MockVoucherRepository) GetVoucherByID(id uuid.UUID) *voucher.UserVoucher {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vouchers[id]
}

// --- Wallet Repository Mock ---

// MockWalletRepository is a mock implementation of wallet.Repository.
type MockWalletRepository struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]*wallet.Wallet

	CreateFunc       func(ctx context.Context, w *wallet.Wallet) error
	GetByUserIDFunc  func(ctx context.Context, userID uuid.UUID) (*wallet.Wallet, error)
	GetForUpdateFunc func(ctx context.Context, userID uuid.UUID) (*wallet.Wallet, error)
	UpdateFunc       func(ctx context.Context, w *wallet.Wallet) error
}

func NewMockWalletRepository() *MockWalletRepository {
	return &MockWalletRepository{wallets: make(map[uuid.UUID]*wallet.Wallet)}
}

// AddWallet pre-populates the mock with a wallet.
func (m *MockWalletRepository) AddWallet(w *wallet.Wallet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets[w.UserID] = w
}

func (m *MockWalletRepository) Create(ctx context.Context, w *wallet.Wallet) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, w)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets[w.UserID] = w
	return nil
}

func (m *MockWalletRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*wallet.Wallet, error) {
	if m.GetByUserIDFunc != nil {
		return m.GetByUserIDFunc(ctx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[userID]
	if !ok {
		return nil, domainErrors.ErrWalletNotFound
	}
	return w, nil
}

func (m *MockWalletRepository) GetForUpdate(ctx context.Context, userID uuid.UUID) (*wallet.Wallet, error) {
	if m.GetForUpdateFunc != nil {
		return m.GetForUpdateFunc(ctx, userID)
	}
	return m.GetByUserID(ctx, userID)
}

func (m *MockWalletRepository) Update(ctx context.Context, w *wallet.Wallet) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, w)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets[w.UserID] = w
	return nil
}

// GetWalletByUserID returns the stored wallet (test helper, no context needed).
func (m *MockWalletRepository) GetWalletByUserID(userID uuid.UUID) *wallet.Wallet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wallets[userID]
}

// --- Transaction Manager Mock ---

// MockTransactionManager is a mock implementation of TransactionManager.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Outbox Repository Mock ---

// MockOutboxRepository is a mock implementation of outbox.Repository.
type MockOutboxRepository struct {
	mu      sync.Mutex
	entries []*outbox.Entry

	InsertFunc        func(ctx context.Context, entry *outbox.Entry) error
	GetPendingFunc    func(ctx context.Context, limit int) ([]*outbox.Entry, error)
	MarkPublishedFunc func(ctx context.Context, id uuid.UUID) error
	MarkFailedFunc    func(ctx context.Context, id uuid.UUID) error
}

func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{}
}

func (m *MockOutboxRepository) Insert(ctx context.Context, entry *outbox.Entry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	if m.GetPendingFunc != nil {
		return m.GetPendingFunc(ctx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []*outbox.Entry
	for _, e := range m.entries {
		if e.Status == outbox.StatusPending {
			pending = append(pending, e)
		}
		if len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	if m.MarkPublishedFunc != nil {
		return m.MarkPublishedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			e.Status = outbox.StatusPublished
		}
	}
	return nil
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			e.RetryCount++
			if e.RetryCount >= e.MaxRetries {
				e.Status = outbox.StatusFailed
			}
		}
	}
	return nil
}

// Entries returns a snapshot of all inserted entries.
func (m *MockOutboxRepository) Entries() []*outbox.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*outbox.Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// --- Publisher Mock ---

// MockPublisher records envelopes per stream.
type MockPublisher struct {
	mu        sync.Mutex
	published map[string][]event.Envelope
	dlq       []event.Envelope

	PublishFunc      func(ctx context.Context, stream string, env event.Envelope) error
	PublishToDLQFunc func(ctx context.Context, env event.Envelope, reason string) error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{published: make(map[string][]event.Envelope)}
}

func (m *MockPublisher) Publish(ctx context.Context, stream string, env event.Envelope) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, stream, env)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[stream] = append(m.published[stream], env)
	return nil
}

func (m *MockPublisher) PublishToDLQ(ctx context.Context, env event.Envelope, reason string) error {
	if m.PublishToDLQFunc != nil {
		return m.PublishToDLQFunc(ctx, env, reason)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dlq = append(m.dlq, env)
	return nil
}

// Published returns the envelopes recorded for a stream.
func (m *MockPublisher) Published(stream string) []event.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]event.Envelope, len(m.published[stream]))
	copy(out, m.published[stream])
	return out
}

// DLQ returns the envelopes parked on the dead-letter stream.
func (m *MockPublisher) DLQ() []event.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]event.Envelope, len(m.dlq))
	copy(out, m.dlq)
	return out
}

// --- Completion Tracker Mock ---

type trackerState struct {
	reservation bool
	voucher     bool
	ready       bool
	deadline    time.Time
}

// MockTracker is an in-memory completion tracker with the same one-shot
// ready-claim semantics as the redis implementation.
type MockTracker struct {
	mu     sync.Mutex
	states map[uuid.UUID]*trackerState

	MarkReservationDoneFunc func(ctx context.Context, orderID uuid.UUID) (bool, error)
	MarkVoucherDoneFunc     func(ctx context.Context, orderID uuid.UUID) (bool, error)
}

func NewMockTracker() *MockTracker {
	return &MockTracker{states: make(map[uuid.UUID]*trackerState)}
}

func (m *MockTracker) Initialize(ctx context.Context, orderID uuid.UUID, requiresVoucher bool, deadline time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[orderID] = &trackerState{voucher: !requiresVoucher, deadline: deadline}
	return nil
}

func (m *MockTracker) MarkReservationDone(ctx context.Context, orderID uuid.UUID) (bool, error) {
	if m.MarkReservationDoneFunc != nil {
		return m.MarkReservationDoneFunc(ctx, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state(orderID)
	st.reservation = true
	return m.claim(st), nil
}

func (m *MockTracker) MarkVoucherDone(ctx context.Context, orderID uuid.UUID) (bool, error) {
	if m.MarkVoucherDoneFunc != nil {
		return m.MarkVoucherDoneFunc(ctx, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state(orderID)
	st.voucher = true
	return m.claim(st), nil
}

func (m *MockTracker) state(orderID uuid.UUID) *trackerState {
	st, ok := m.states[orderID]
	if !ok {
		st = &trackerState{}
		m.states[orderID] = st
	}
	return st
}

func (m *MockTracker) claim(st *trackerState) bool {
	if st.reservation && st.voucher && !st.ready {
		st.ready = true
		return true
	}
	return false
}

func (m *MockTracker) ReservationDone(ctx context.Context, orderID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[orderID]
	return ok && st.reservation, nil
}

func (m *MockTracker) VoucherDone(ctx context.Context, orderID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[orderID]
	return ok && st.voucher, nil
}

func (m *MockTracker) Clear(ctx context.Context, orderID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, orderID)
	return nil
}

func (m *MockTracker) Due(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []uuid.UUID
	for id, st := range m.states {
		if !st.deadline.IsZero() && st.deadline.Before(now) {
			due = append(due, id)
		}
	}
	return due, nil
}

func (m *MockTracker) Remove(ctx context.Context, orderID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[orderID]; ok {
		st.deadline = time.Time{}
	}
	return nil
}

// Exists reports whether the tracker still holds state for the order.
func (m *MockTracker) Exists(orderID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.states[orderID]
	return ok
}

// --- Once Guard Mock ---

// MockOnceGuard is an in-memory once-guard.
type MockOnceGuard struct {
	mu      sync.Mutex
	claimed map[string]bool

	BeginFunc func(ctx context.Context, key string) (bool, error)
}

func NewMockOnceGuard() *MockOnceGuard {
	return &MockOnceGuard{claimed: make(map[string]bool)}
}

func (m *MockOnceGuard) Begin(ctx context.Context, key string) (bool, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimed[key] {
		return false, nil
	}
	m.claimed[key] = true
	return true, nil
}

func (m *MockOnceGuard) Undo(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claimed, key)
	return nil
}

// --- Payment Step Mock ---

// MockPaymentStep is a mock wallet debit step.
type MockPaymentStep struct {
	mu     sync.Mutex
	debits []int64

	DebitFunc func(ctx context.Context, userID uuid.UUID, amount int64) error
}

func NewMockPaymentStep() *MockPaymentStep {
	return &MockPaymentStep{}
}

func (m *MockPaymentStep) Debit(ctx context.Context, userID uuid.UUID, amount int64) error {
	if m.DebitFunc != nil {
		return m.DebitFunc(ctx, userID, amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debits = append(m.debits, amount)
	return nil
}

// Debits returns the recorded debit amounts.
func (m *MockPaymentStep) Debits() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, len(m.debits))
	copy(out, m.debits)
	return out
}

// --- Popularity Store Mock ---

// MockPopularityStore records sales increments and serves the ranking.
type MockPopularityStore struct {
	mu    sync.Mutex
	sales map[uuid.UUID]int

	RecordSalesFunc func(ctx context.Context, quantities map[uuid.UUID]int) error
	TopNFunc        func(ctx context.Context, n int64) ([]inventory.RankedItem, error)
}

func NewMockPopularityStore() *MockPopularityStore {
	return &MockPopularityStore{sales: make(map[uuid.UUID]int)}
}

func (m *MockPopularityStore) RecordSales(ctx context.Context, quantities map[uuid.UUID]int) error {
	if m.RecordSalesFunc != nil {
		return m.RecordSalesFunc(ctx, quantities)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, qty := range quantities {
		m.sales[id] += qty
	}
	return nil
}

// Sales returns the accumulated units per item.
func (m *MockPopularityStore) Sales(itemID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sales[itemID]
}

func (m *MockPopularityStore) TopN(ctx context.Context, n int64) ([]inventory.RankedItem, error) {
	if m.TopNFunc != nil {
		return m.TopNFunc(ctx, n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ranked := make([]inventory.RankedItem, 0, len(m.sales))
	for id, sold := range m.sales {
		ranked = append(ranked, inventory.RankedItem{ItemID: id, Sold: int64(sold)})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Sold > ranked[j].Sold })
	if int64(len(ranked)) > n {
		ranked = ranked[:n]
	}
	return ranked, nil
}

// --- Analytics Publisher Mock ---

// MockAnalyticsPublisher records published order data.
type MockAnalyticsPublisher struct {
	mu   sync.Mutex
	data []event.OrderData

	PublishOrderDataFunc func(ctx context.Context, data event.OrderData) error
}

func NewMockAnalyticsPublisher() *MockAnalyticsPublisher {
	return &MockAnalyticsPublisher{}
}

func (m *MockAnalyticsPublisher) PublishOrderData(ctx context.Context, data event.OrderData) error {
	if m.PublishOrderDataFunc != nil {
		return m.PublishOrderDataFunc(ctx, data)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append(m.data, data)
	return nil
}

// Data returns the recorded publishes.
func (m *MockAnalyticsPublisher) Data() []event.OrderData {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]event.OrderData, len(m.data))
	copy(out, m.data)
	return out
}

// --- Locker Mock ---

// NopLocker hands out locks without contention.
type NopLocker struct{}

func (NopLocker) Acquire(ctx context.Context, key string) (lock.ReleaseFunc, error) {
	return func(context.Context) error { return nil }, nil
}
