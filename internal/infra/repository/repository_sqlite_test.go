package repository_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"storefront/internal/domain/model"
	infradb "storefront/internal/infra/db"
	"storefront/internal/infra/rabbitmq"
	gormrepo "storefront/internal/infra/repository"
	repo "storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// テストごとに別のインメモリDB
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, infradb.Migrate(gdb))
	return gdb
}

func seedProduct(t *testing.T, gdb *gorm.DB, name string, price string, stock int64) model.Product {
	t.Helper()
	p := model.Product{
		ID:            uuid.NewString(),
		Name:          name,
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		IsActive:      true,
	}
	require.NoError(t, gdb.Create(&p).Error)
	return p
}

func seedPack(t *testing.T, gdb *gorm.DB, name string, price string, stock *int64) model.Pack {
	t.Helper()
	p := model.Pack{
		ID:            uuid.NewString(),
		Name:          name,
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		IsActive:      true,
	}
	require.NoError(t, gdb.Create(&p).Error)
	return p
}

func productStock(t *testing.T, gdb *gorm.DB, id string) int64 {
	t.Helper()
	var p model.Product
	require.NoError(t, gdb.First(&p, "id = ?", id).Error)
	return p.StockQuantity
}

func countRows(t *testing.T, gdb *gorm.DB, m any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	q := gdb.Model(m)
	if where != "" {
		q = q.Where(where, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

type uuidGen struct{}

func (uuidGen) NewID() string { return uuid.NewString() }

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newOrderUsecase(gdb *gorm.DB) *usecase.OrderUsecase {
	pricer := usecase.NewPricer(gormrepo.NewCatalogGormRepository(gdb), 100)
	return usecase.NewOrderUsecase(pricer, gormrepo.NewTxManagerGorm(gdb), uuidGen{}, wallClock{}, rabbitmq.NopPublisher{}, discardLogger())
}

func guestOrder(lines ...model.CartLine) usecase.CreateOrderInput {
	return usecase.CreateOrderInput{
		Lines: lines,
		Shipping: usecase.ShippingInfo{
			Address: "12 Rue Didouche Mourad",
			City:    "Algiers",
			Country: "DZ",
			Zip:     "16000",
		},
		Email: "buyer@example.com",
	}
}

func TestCatalog_GetProductsAndPacks(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	catalog := gormrepo.NewCatalogGormRepository(gdb)

	p := seedProduct(t, gdb, "Dragon figurine", "500", 3)
	gone := seedProduct(t, gdb, "Old vase", "120", 1)
	require.NoError(t, gdb.Delete(&gone).Error)
	k := seedPack(t, gdb, "Starter pack", "900", nil)

	t.Run("削除済みは返らない", func(t *testing.T) {
		items, err := catalog.GetProducts(ctx, []string{p.ID, gone.ID, uuid.NewString()})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, p.ID, items[0].ID)
		assert.Equal(t, model.ItemKindProduct, items[0].Kind)
		assert.True(t, items[0].UnitPrice.Equal(decimal.NewFromInt(500)))
		require.NotNil(t, items[0].StockQuantity)
		assert.Equal(t, int64(3), *items[0].StockQuantity)
	})

	t.Run("パックの在庫NULLはnil", func(t *testing.T) {
		items, err := catalog.GetPacks(ctx, []string{k.ID})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, model.ItemKindPack, items[0].Kind)
		assert.Nil(t, items[0].StockQuantity)
	})

	t.Run("空のID一覧", func(t *testing.T) {
		items, err := catalog.GetProducts(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, items)
	})
}

func TestInventory_DecreaseStockIfEnough(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	inv := gormrepo.NewInventoryGormRepository(gdb)

	p := seedProduct(t, gdb, "Dragon figurine", "500", 10)

	ok, err := inv.DecreaseStockIfEnough(ctx, model.ItemKindProduct, p.ID, 4)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(6), productStock(t, gdb, p.ID))

	// 足りないときは減らさない
	ok, err = inv.DecreaseStockIfEnough(ctx, model.ItemKindProduct, p.ID, 7)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(6), productStock(t, gdb, p.ID))

	ok, err = inv.DecreaseStockIfEnough(ctx, model.ItemKindProduct, p.ID, 6)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(0), productStock(t, gdb, p.ID))

	t.Run("在庫制限なしのパック", func(t *testing.T) {
		k := seedPack(t, gdb, "Starter pack", "900", nil)
		ok, err := inv.DecreaseStockIfEnough(ctx, model.ItemKindPack, k.ID, 50)
		require.NoError(t, err)
		assert.True(t, ok)

		var got model.Pack
		require.NoError(t, gdb.First(&got, "id = ?", k.ID).Error)
		assert.Nil(t, got.StockQuantity)
	})

	t.Run("存在しない品目", func(t *testing.T) {
		ok, err := inv.DecreaseStockIfEnough(ctx, model.ItemKindProduct, uuid.NewString(), 1)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestOrderRepository_ApplyPayment(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	orders := gormrepo.NewOrderGormRepository(gdb)

	o := model.Order{
		ID:            uuid.NewString(),
		Status:        model.OrderStatusPending,
		PaymentStatus: model.PaymentStatusUnpaid,
		TotalAmount:   decimal.NewFromInt(1000),
	}
	require.NoError(t, orders.Create(ctx, o))

	paid := repo.PaymentUpdate{Status: model.PaymentStatusPaid, TransactionID: "chk_1", PaymentMethod: "chargily"}

	applied, err := orders.ApplyPayment(ctx, o.ID, paid)
	require.NoError(t, err)
	assert.True(t, applied)

	// 再送
	applied, err = orders.ApplyPayment(ctx, o.ID, paid)
	require.NoError(t, err)
	assert.False(t, applied)

	// paidの後のfailedは無視
	applied, err = orders.ApplyPayment(ctx, o.ID, repo.PaymentUpdate{Status: model.PaymentStatusFailed, TransactionID: "chk_2"})
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := orders.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPaid, got.PaymentStatus)
	require.NotNil(t, got.TransactionID)
	assert.Equal(t, "chk_1", *got.TransactionID)
	require.NotNil(t, got.PaymentMethod)
	assert.Equal(t, "chargily", *got.PaymentMethod)

	t.Run("存在しない注文", func(t *testing.T) {
		_, err := orders.FindByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, repo.ErrNotFound)
		assert.ErrorIs(t, orders.Delete(ctx, uuid.NewString()), repo.ErrNotFound)
	})
}

func TestCreateOrder_PersistsHeaderItemsAndReservations(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	u := newOrderUsecase(gdb)

	p := seedProduct(t, gdb, "Dragon figurine", "500", 10)
	k := seedPack(t, gdb, "Starter pack", "900", nil)

	out, err := u.CreateOrder(ctx, nil, guestOrder(
		model.CartLine{Kind: model.ItemKindProduct, ReferenceID: p.ID, Quantity: 2},
		model.CartLine{Kind: model.ItemKindPack, ReferenceID: k.ID, Quantity: 1},
	))
	require.NoError(t, err)
	assert.True(t, out.TotalAmount.Equal(decimal.NewFromInt(1900)))
	assert.Equal(t, string(model.OrderStatusPending), out.Status)
	assert.Equal(t, string(model.PaymentStatusUnpaid), out.PaymentStatus)
	assert.Nil(t, out.UserID)

	assert.Equal(t, int64(1), countRows(t, gdb, &model.Order{}, "id = ?", out.ID))
	assert.Equal(t, int64(2), countRows(t, gdb, &model.OrderItem{}, "order_id = ?", out.ID))
	assert.Equal(t, int64(8), productStock(t, gdb, p.ID))
	assert.Equal(t, int64(1), countRows(t, gdb, &model.InventoryAdjustment{}, "order_id = ? AND reason = ?", out.ID, model.AdjustmentReasonOrderReserve))

	// 在庫制限なしのパックは確保しない
	assert.Equal(t, int64(0), countRows(t, gdb, &model.InventoryAdjustment{}, "item_kind = ? AND item_id = ?", model.ItemKindPack, k.ID))
	var pack model.Pack
	require.NoError(t, gdb.First(&pack, "id = ?", k.ID).Error)
	assert.Nil(t, pack.StockQuantity)
}

func TestCreateOrder_ItemsKeepCartLineOrder(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	u := newOrderUsecase(gdb)
	userID := uuid.NewString()

	var lines []model.CartLine
	var want []string
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("item-%d", i)
		p := seedProduct(t, gdb, name, "100", 10)
		lines = append(lines, model.CartLine{Kind: model.ItemKindProduct, ReferenceID: p.ID, Quantity: 1})
		want = append(want, name)
	}

	out, err := u.CreateOrder(ctx, &userID, guestOrder(lines...))
	require.NoError(t, err)

	detail, err := u.GetMyOrderDetail(ctx, userID, out.ID)
	require.NoError(t, err)
	require.Len(t, detail.Items, len(want))

	got := make([]string, 0, len(detail.Items))
	for i, it := range detail.Items {
		got = append(got, it.Name)
		assert.Equal(t, i+1, it.LineNo)
	}
	assert.Equal(t, want, got)

	// 一覧でも同じ順
	list, err := u.ListMyOrders(ctx, userID, 1, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Len(t, list[0].Items, len(want))
	assert.Equal(t, want[0], list[0].Items[0].Name)
	assert.Equal(t, want[7], list[0].Items[7].Name)
}

func TestCreateOrder_InsufficientStockLeavesNothing(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	u := newOrderUsecase(gdb)

	a := seedProduct(t, gdb, "Dragon figurine", "500", 5)
	b := seedProduct(t, gdb, "Moon lamp", "300", 5)

	// 2行目だけ在庫が足りない
	require.NoError(t, gdb.Model(&model.Product{}).Where("id = ?", b.ID).Update("stock_quantity", 1).Error)

	_, err := u.CreateOrder(ctx, nil, guestOrder(
		model.CartLine{Kind: model.ItemKindProduct, ReferenceID: a.ID, Quantity: 2},
		model.CartLine{Kind: model.ItemKindProduct, ReferenceID: b.ID, Quantity: 2},
	))
	require.Error(t, err)
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, he.Status)

	assert.Equal(t, int64(0), countRows(t, gdb, &model.Order{}, ""))
	assert.Equal(t, int64(0), countRows(t, gdb, &model.InventoryAdjustment{}, ""))
	assert.Equal(t, int64(5), productStock(t, gdb, a.ID))
	assert.Equal(t, int64(1), productStock(t, gdb, b.ID))
}

func TestCreateOrder_ItemInsertFailureRollsBack(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()

	// order_itemsへのINSERTだけ失敗させる
	require.NoError(t, gdb.Callback().Create().Before("gorm:create").Register("test:fail_order_items", func(d *gorm.DB) {
		if d.Statement.Table == "order_items" {
			_ = d.AddError(errors.New("order_items insert failed"))
		}
	}))

	u := newOrderUsecase(gdb)
	p := seedProduct(t, gdb, "Dragon figurine", "500", 10)

	_, err := u.CreateOrder(ctx, nil, guestOrder(
		model.CartLine{Kind: model.ItemKindProduct, ReferenceID: p.ID, Quantity: 3},
	))
	require.Error(t, err)
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, he.Status)

	// ヘッダも在庫の減算も残らない
	assert.Equal(t, int64(0), countRows(t, gdb, &model.Order{}, ""))
	assert.Equal(t, int64(0), countRows(t, gdb, &model.OrderItem{}, ""))
	assert.Equal(t, int64(0), countRows(t, gdb, &model.InventoryAdjustment{}, ""))
	assert.Equal(t, int64(10), productStock(t, gdb, p.ID))
}

func TestWebhook_PaidOnceAcrossRedeliveries(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	const secret = "whsec_test"

	p := seedProduct(t, gdb, "Dragon figurine", "500", 10)
	out, err := newOrderUsecase(gdb).CreateOrder(ctx, nil, guestOrder(
		model.CartLine{Kind: model.ItemKindProduct, ReferenceID: p.ID, Quantity: 1},
	))
	require.NoError(t, err)

	wh := usecase.NewWebhookUsecase(gormrepo.NewTxManagerGorm(gdb), secret, "chargily", wallClock{}, rabbitmq.NopPublisher{}, discardLogger())

	paid := []byte(fmt.Sprintf(`{"id":"evt_1","type":"checkout.paid","data":{"id":"chk_1","status":"paid","metadata":{"order_id":"%s"}}}`, out.ID))
	for i := 0; i < 3; i++ {
		require.NoError(t, wh.HandleWebhook(ctx, paid, usecase.SignPayload(secret, paid)))
	}

	// paidの後のfailedも状態を戻さない
	failed := []byte(fmt.Sprintf(`{"id":"evt_2","type":"checkout.failed","data":{"id":"chk_2","status":"failed","metadata":{"order_id":"%s"}}}`, out.ID))
	require.NoError(t, wh.HandleWebhook(ctx, failed, usecase.SignPayload(secret, failed)))

	var got model.Order
	require.NoError(t, gdb.First(&got, "id = ?", out.ID).Error)
	assert.Equal(t, model.PaymentStatusPaid, got.PaymentStatus)
	require.NotNil(t, got.TransactionID)
	assert.Equal(t, "chk_1", *got.TransactionID)

	assert.Equal(t, int64(1), countRows(t, gdb, &model.AuditLog{}, "resource_id = ? AND action = ?", out.ID, model.AuditActionReconcilePayment))

	t.Run("署名が違えば何も変えない", func(t *testing.T) {
		other, err := newOrderUsecase(gdb).CreateOrder(ctx, nil, guestOrder(
			model.CartLine{Kind: model.ItemKindProduct, ReferenceID: p.ID, Quantity: 1},
		))
		require.NoError(t, err)

		body := []byte(fmt.Sprintf(`{"id":"evt_3","type":"checkout.paid","data":{"id":"chk_3","metadata":{"order_id":"%s"}}}`, other.ID))
		err = wh.HandleWebhook(ctx, body, usecase.SignPayload("wrong", body))
		require.Error(t, err)

		var o model.Order
		require.NoError(t, gdb.First(&o, "id = ?", other.ID).Error)
		assert.Equal(t, model.PaymentStatusUnpaid, o.PaymentStatus)
		assert.Nil(t, o.TransactionID)
	})
}

func TestAdminCancel_RestoresReservedStock(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()

	p := seedProduct(t, gdb, "Dragon figurine", "500", 10)
	out, err := newOrderUsecase(gdb).CreateOrder(ctx, nil, guestOrder(
		model.CartLine{Kind: model.ItemKindProduct, ReferenceID: p.ID, Quantity: 4},
	))
	require.NoError(t, err)
	require.Equal(t, int64(6), productStock(t, gdb, p.ID))

	admin := usecase.NewAdminOrderUsecase(gormrepo.NewTxManagerGorm(gdb), nil, wallClock{})
	adminID := uuid.NewString()

	require.NoError(t, admin.UpdateStatus(ctx, adminID, out.ID, usecase.AdminUpdateOrderStatusInput{Status: "cancelled"}))
	assert.Equal(t, int64(10), productStock(t, gdb, p.ID))
	assert.Equal(t, int64(1), countRows(t, gdb, &model.InventoryAdjustment{}, "order_id = ? AND reason = ?", out.ID, model.AdjustmentReasonOrderCancel))

	// 終端からは動かせない
	err = admin.UpdateStatus(ctx, adminID, out.ID, usecase.AdminUpdateOrderStatusInput{Status: "processing"})
	require.Error(t, err)
	assert.Equal(t, int64(10), productStock(t, gdb, p.ID))

	trail, err := admin.AuditTrail(ctx, out.ID, usecase.AuditTrailQuery{})
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, model.AuditActionUpdateOrderStatus, trail[0].Action)
}

func TestAuditTrail_FiltersByActorAndAction(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()

	p := seedProduct(t, gdb, "Dragon figurine", "500", 10)
	out, err := newOrderUsecase(gdb).CreateOrder(ctx, nil, guestOrder(
		model.CartLine{Kind: model.ItemKindProduct, ReferenceID: p.ID, Quantity: 1},
	))
	require.NoError(t, err)

	adminID := uuid.NewString()
	base := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	logs := []model.AuditLog{
		{Actor: adminID, Action: model.AuditActionUpdateOrderStatus, ResourceType: model.AuditResourceOrder, ResourceID: out.ID, CreatedAt: base.Add(2 * time.Minute)},
		{Actor: model.AuditActorGateway, Action: model.AuditActionReconcilePayment, ResourceType: model.AuditResourceOrder, ResourceID: out.ID, CreatedAt: base},
		// 別の注文
		{Actor: adminID, Action: model.AuditActionUpdateOrderStatus, ResourceType: model.AuditResourceOrder, ResourceID: uuid.NewString(), CreatedAt: base},
	}
	require.NoError(t, gdb.Create(&logs).Error)

	admin := usecase.NewAdminOrderUsecase(gormrepo.NewTxManagerGorm(gdb), nil, wallClock{})

	all, err := admin.AuditTrail(ctx, out.ID, usecase.AuditTrailQuery{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	// 古い順
	assert.Equal(t, model.AuditActorGateway, all[0].Actor)
	assert.Equal(t, adminID, all[1].Actor)

	byAdmin, err := admin.AuditTrail(ctx, out.ID, usecase.AuditTrailQuery{Actor: adminID})
	require.NoError(t, err)
	require.Len(t, byAdmin, 1)
	assert.Equal(t, model.AuditActionUpdateOrderStatus, byAdmin[0].Action)

	payments, err := admin.AuditTrail(ctx, out.ID, usecase.AuditTrailQuery{Action: string(model.AuditActionReconcilePayment)})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, model.AuditActorGateway, payments[0].Actor)

	none, err := admin.AuditTrail(ctx, out.ID, usecase.AuditTrailQuery{Actor: adminID, Action: string(model.AuditActionReconcilePayment)})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCartGorm_AddMergeAndRemove(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	carts := gormrepo.NewCartGormRepository(gdb)
	userID := uuid.NewString()
	productID := uuid.NewString()

	lines, err := carts.Lines(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, lines)

	require.NoError(t, carts.Add(ctx, userID, model.CartLine{Kind: model.ItemKindProduct, ReferenceID: productID, Quantity: 2}))
	require.NoError(t, carts.Add(ctx, userID, model.CartLine{Kind: model.ItemKindProduct, ReferenceID: productID, Quantity: 3}))

	lines, err = carts.Lines(ctx, userID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, int64(5), lines[0].Quantity)

	require.NoError(t, carts.SetQuantity(ctx, userID, model.ItemKindProduct, productID, 1))
	lines, err = carts.Lines(ctx, userID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, int64(1), lines[0].Quantity)

	assert.ErrorIs(t, carts.Remove(ctx, userID, model.ItemKindPack, productID), repo.ErrNotFound)
	require.NoError(t, carts.Remove(ctx, userID, model.ItemKindProduct, productID))

	lines, err = carts.Lines(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, lines)

	// 別ユーザーのカートは見えない
	require.NoError(t, carts.Add(ctx, userID, model.CartLine{Kind: model.ItemKindProduct, ReferenceID: productID, Quantity: 1}))
	other, err := carts.Lines(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, carts.Clear(ctx, userID))
	lines, err = carts.Lines(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, lines)
}
