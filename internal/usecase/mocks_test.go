package usecase_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/infra/gateway"
	"storefront/internal/infra/mailer"
	repo "storefront/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// =====================
// TxManager / TxRepos mocks
// =====================

// TxManagerMock は WithinTx の中で渡す repos を固定して unit テストを回す
type TxManagerMock struct {
	mock.Mock
	Repos repo.TxRepos
}

func (m *TxManagerMock) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	// 呼ばれた事実だけ記録（ctxの具体値は問わない）
	m.Called(ctx)
	return fn(m.Repos)
}

// DBトランザクションのようにエラー時はロールバックされる前提のTxManager
type AtomicTxManagerMock struct {
	TxManagerMock
}

func (m *AtomicTxManagerMock) RollsBackOnError() bool { return true }

type TxReposMock struct {
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	inventory  repo.InventoryRepository
	auditLogs  repo.AuditLogRepository
}

func (r *TxReposMock) Orders() repo.OrderRepository         { return r.orders }
func (r *TxReposMock) OrderItems() repo.OrderItemRepository { return r.orderItems }
func (r *TxReposMock) Inventory() repo.InventoryRepository  { return r.inventory }
func (r *TxReposMock) AuditLogs() repo.AuditLogRepository   { return r.auditLogs }

// =====================
// Repository mocks
// =====================

type OrderRepoMock struct{ mock.Mock }

func (m *OrderRepoMock) FindByID(ctx context.Context, orderID string) (model.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *OrderRepoMock) ListByUserID(ctx context.Context, userID string, page int, limit int) ([]model.Order, int64, error) {
	args := m.Called(ctx, userID, page, limit)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Get(1).(int64), args.Error(2)
}

func (m *OrderRepoMock) Create(ctx context.Context, order model.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *OrderRepoMock) Delete(ctx context.Context, orderID string) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

func (m *OrderRepoMock) UpdateStatus(ctx context.Context, orderID string, status model.OrderStatus) error {
	args := m.Called(ctx, orderID, status)
	return args.Error(0)
}

func (m *OrderRepoMock) ApplyPayment(ctx context.Context, orderID string, u repo.PaymentUpdate) (bool, error) {
	args := m.Called(ctx, orderID, u)
	return args.Bool(0), args.Error(1)
}

func (m *OrderRepoMock) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	args := m.Called(ctx, f)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Get(1).(int64), args.Error(2)
}

type OrderItemRepoMock struct{ mock.Mock }

func (m *OrderItemRepoMock) CreateBulk(ctx context.Context, orderID string, items []model.OrderItem) error {
	args := m.Called(ctx, orderID, items)
	return args.Error(0)
}

func (m *OrderItemRepoMock) ListByOrderID(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	args := m.Called(ctx, orderID)
	items, _ := args.Get(0).([]model.OrderItem)
	return items, args.Error(1)
}

type InventoryRepoMock struct{ mock.Mock }

func (m *InventoryRepoMock) DecreaseStockIfEnough(ctx context.Context, kind model.ItemKind, itemID string, qty int64) (bool, error) {
	args := m.Called(ctx, kind, itemID, qty)
	return args.Bool(0), args.Error(1)
}

func (m *InventoryRepoMock) IncreaseStock(ctx context.Context, kind model.ItemKind, itemID string, qty int64) error {
	args := m.Called(ctx, kind, itemID, qty)
	return args.Error(0)
}

func (m *InventoryRepoMock) CreateAdjustment(ctx context.Context, adjustment model.InventoryAdjustment) error {
	args := m.Called(ctx, adjustment)
	return args.Error(0)
}

func (m *InventoryRepoMock) ListAdjustmentsByOrder(ctx context.Context, orderID string) ([]model.InventoryAdjustment, error) {
	args := m.Called(ctx, orderID)
	adjs, _ := args.Get(0).([]model.InventoryAdjustment)
	return adjs, args.Error(1)
}

type AuditRepoMock struct{ mock.Mock }

func (m *AuditRepoMock) Create(ctx context.Context, log model.AuditLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *AuditRepoMock) List(ctx context.Context, filter repo.AuditLogFilter) ([]model.AuditLog, error) {
	args := m.Called(ctx, filter)
	logs, _ := args.Get(0).([]model.AuditLog)
	return logs, args.Error(1)
}

type CatalogMock struct{ mock.Mock }

func (m *CatalogMock) GetProducts(ctx context.Context, ids []string) ([]model.CatalogItem, error) {
	args := m.Called(ctx, ids)
	items, _ := args.Get(0).([]model.CatalogItem)
	return items, args.Error(1)
}

func (m *CatalogMock) GetPacks(ctx context.Context, ids []string) ([]model.CatalogItem, error) {
	args := m.Called(ctx, ids)
	items, _ := args.Get(0).([]model.CatalogItem)
	return items, args.Error(1)
}

// =====================
// 外部サービス mocks
// =====================

type GatewayMock struct{ mock.Mock }

func (m *GatewayMock) CreateCheckout(ctx context.Context, in gateway.CheckoutRequest) (gateway.CheckoutSession, error) {
	args := m.Called(ctx, in)
	s, _ := args.Get(0).(gateway.CheckoutSession)
	return s, args.Error(1)
}

type MailerMock struct{ mock.Mock }

func (m *MailerMock) Send(ctx context.Context, msg mailer.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type PublisherMock struct{ mock.Mock }

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, data any) error {
	args := m.Called(ctx, routingKey, data)
	return args.Error(0)
}

// Dispatchの呼び出しを記録するだけ
type NotifierSpy struct {
	mu    sync.Mutex
	calls [][2]model.Order
}

func (s *NotifierSpy) Dispatch(old, cur model.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, [2]model.Order{old, cur})
}

func (s *NotifierSpy) Calls() [][2]model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][2]model.Order(nil), s.calls...)
}

// =====================
// IDGenerator / Clock
// =====================

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", g.n)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// =====================
// Helper: error contains（HTTPErrorの実装詳細に依存しない）
// =====================

func assertErrContains(t *testing.T, err error, wantSubstr string) {
	t.Helper()
	if assert.Error(t, err) {
		assert.True(t, strings.Contains(err.Error(), wantSubstr), "err=%q want contains %q", err.Error(), wantSubstr)
	}
}

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }
