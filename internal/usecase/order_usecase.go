package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderUsecase struct {
	pricer *Pricer
	tx     repo.TransactionManager
	idGen  IDGenerator
	clock  Clock
	events EventPublisher
	log    *slog.Logger
	// ロールバックで戻るなら補償処理はしない
	atomic bool
}

func NewOrderUsecase(
	pricer *Pricer,
	tx repo.TransactionManager,
	idGen IDGenerator,
	clock Clock,
	events EventPublisher,
	log *slog.Logger,
) *OrderUsecase {
	if log == nil {
		log = slog.Default()
	}
	atomic := false
	if a, ok := tx.(repo.AtomicTransactionManager); ok {
		atomic = a.RollsBackOnError()
	}
	return &OrderUsecase{
		pricer: pricer,
		tx:     tx,
		idGen:  idGen,
		clock:  clock,
		events: events,
		log:    log,
		atomic: atomic,
	}
}

type ShippingInfo struct {
	Address string
	City    string
	Country string
	Zip     string
}

type CreateOrderInput struct {
	Lines    []model.CartLine
	Shipping ShippingInfo
	Email    string
	Notes    string
}

type OrderItemOutput struct {
	ID        string          `json:"id"`
	ProductID *string         `json:"product_id"`
	PackID    *string         `json:"pack_id"`
	Name      string          `json:"product_name"`
	Price     decimal.Decimal `json:"product_price"`
	Quantity  int64           `json:"quantity"`
	LineNo    int             `json:"line_no"`
}

type OrderOutput struct {
	ID              string            `json:"id"`
	UserID          *string           `json:"user_id"`
	Status          string            `json:"status"`
	PaymentStatus   string            `json:"payment_status"`
	TotalAmount     decimal.Decimal   `json:"total_amount"`
	Email           *string           `json:"email,omitempty"`
	ShippingAddress *string           `json:"shipping_address"`
	ShippingCity    *string           `json:"shipping_city"`
	ShippingCountry *string           `json:"shipping_country"`
	ShippingZip     *string           `json:"shipping_zip"`
	Notes           *string           `json:"notes"`
	TransactionID   *string           `json:"transaction_id"`
	PaymentMethod   *string           `json:"payment_method"`
	CreatedAt       time.Time         `json:"created_at"`
	Items           []OrderItemOutput `json:"items"`
}

// 注文作成イベントのペイロード
type OrderCreatedEvent struct {
	OrderID     string          `json:"order_id"`
	UserID      *string         `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ItemCount   int             `json:"item_count"`
	CreatedAt   time.Time       `json:"created_at"`
}

// CreateOrder はカートを検証・価格計算し、在庫確保・注文ヘッダ・明細を1つのトランザクションで保存する。
// userIDがnilならゲスト注文。
func (u *OrderUsecase) CreateOrder(ctx context.Context, userID *string, in CreateOrderInput) (OrderOutput, error) {
	if userID != nil {
		if _, err := uuid.Parse(*userID); err != nil {
			return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
	}
	if err := validateOrderContact(in); err != nil {
		return OrderOutput{}, err
	}

	//価格はカタログから再計算する（クライアントの価格は使わない）
	pricing, err := u.pricer.Price(ctx, in.Lines)
	if err != nil {
		return OrderOutput{}, err
	}

	now := u.clock.Now()
	order := model.Order{
		ID:              u.idGen.NewID(),
		UserID:          userID,
		Status:          model.OrderStatusPending,
		PaymentStatus:   model.PaymentStatusUnpaid,
		TotalAmount:     pricing.TotalAmount,
		Email:           optional(in.Email),
		ShippingAddress: optional(in.Shipping.Address),
		ShippingCity:    optional(in.Shipping.City),
		ShippingCountry: optional(in.Shipping.Country),
		ShippingZip:     optional(in.Shipping.Zip),
		Notes:           optional(in.Notes),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	items := make([]model.OrderItem, len(pricing.Items))
	for i, it := range pricing.Items {
		it.ID = u.idGen.NewID()
		it.OrderID = order.ID
		it.LineNo = i + 1
		it.CreatedAt = now
		items[i] = it
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		reserved := make([]StockReservation, 0, len(pricing.Reservations))

		//在庫を条件付きで減らす（チェックと減算を同じUPDATEで）
		for _, res := range pricing.Reservations {
			ok, err := r.Inventory().DecreaseStockIfEnough(ctx, res.Kind, res.ItemID, res.Quantity)
			if err != nil {
				u.compensate(ctx, r, "", reserved)
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !ok {
				u.compensate(ctx, r, "", reserved)
				return NewHTTPError(http.StatusConflict, "insufficient stock: "+res.Name)
			}
			reserved = append(reserved, res)

			if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
				ItemKind:  res.Kind,
				ItemID:    res.ItemID,
				OrderID:   order.ID,
				Delta:     -res.Quantity,
				Reason:    model.AdjustmentReasonOrderReserve,
				CreatedAt: now,
			}); err != nil {
				u.compensate(ctx, r, "", reserved)
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
		}

		// 注文ヘッダ
		if err := r.Orders().Create(ctx, order); err != nil {
			u.compensate(ctx, r, "", reserved)
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//明細一括作成。失敗したらヘッダを消して明細なしの注文を残さない
		if err := r.OrderItems().CreateBulk(ctx, order.ID, items); err != nil {
			u.compensate(ctx, r, order.ID, reserved)
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})
	if err != nil {
		if _, ok := AsHTTPError(err); ok {
			return OrderOutput{}, err
		}
		return OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if perr := u.events.Publish(ctx, EventOrderCreated, OrderCreatedEvent{
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		ItemCount:   len(items),
		CreatedAt:   order.CreatedAt,
	}); perr != nil {
		u.log.WarnContext(ctx, "publish order.created failed", "order_id", order.ID, "error", perr)
	}

	return toOrderOutput(order, items), nil
}

// 補償処理。トランザクションが効かないストアでも、ヘッダだけ・在庫だけ減った状態を残さない。
// DBトランザクションならロールバックに任せる（postgresは失敗後のtxに書き込めない）
func (u *OrderUsecase) compensate(ctx context.Context, r repo.TxRepos, orderID string, reserved []StockReservation) {
	if u.atomic {
		return
	}
	if orderID != "" {
		if err := r.Orders().Delete(ctx, orderID); err != nil && !errors.Is(err, repo.ErrNotFound) {
			u.log.ErrorContext(ctx, "compensating order delete failed", "order_id", orderID, "error", err)
		}
	}
	for _, res := range reserved {
		if err := r.Inventory().IncreaseStock(ctx, res.Kind, res.ItemID, res.Quantity); err != nil {
			u.log.ErrorContext(ctx, "compensating stock restore failed", "kind", res.Kind, "item_id", res.ItemID, "error", err)
		}
	}
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID string, page int, limit int) ([]OrderOutput, error) {
	if userID == "" {
		return []OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if page < 1 {
		return []OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if limit < 1 || limit > 100 {
		return []OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	var outs []OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, _, err := r.Orders().ListByUserID(ctx, userID, page, limit)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		outs = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			outs = append(outs, toOrderOutput(o, items))
		}
		return nil
	})

	if err != nil {
		return []OrderOutput{}, err
	}
	return outs, nil
}

func (u *OrderUsecase) GetMyOrderDetail(ctx context.Context, userID string, orderID string) (OrderOutput, error) {
	if userID == "" {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if _, err := uuid.Parse(orderID); err != nil {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o.UserID == nil || *o.UserID != userID {
			//他人の注文は「存在しない扱い」にする
			return NewHTTPError(http.StatusNotFound, "not found")
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		out = toOrderOutput(o, items)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

func validateOrderContact(in CreateOrderInput) error {
	checks := []struct {
		field string
		value string
		max   int
	}{
		{"shippingInfo.address", in.Shipping.Address, 500},
		{"shippingInfo.city", in.Shipping.City, 120},
		{"shippingInfo.country", in.Shipping.Country, 120},
		{"shippingInfo.zip", in.Shipping.Zip, 20},
		{"email", in.Email, 255},
		{"notes", in.Notes, 1000},
	}
	for _, c := range checks {
		if len(strings.TrimSpace(c.value)) > c.max {
			return NewHTTPError(http.StatusBadRequest, c.field+" too long")
		}
	}

	if e := strings.TrimSpace(in.Email); e != "" {
		if addr, err := mail.ParseAddress(e); err != nil || addr.Address != e {
			return NewHTTPError(http.StatusBadRequest, "invalid email")
		}
	}
	return nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ID:        it.ID,
			ProductID: it.ProductID,
			PackID:    it.PackID,
			Name:      it.ProductName,
			Price:     it.ProductPrice,
			Quantity:  it.Quantity,
			LineNo:    it.LineNo,
		})
	}

	return OrderOutput{
		ID:              o.ID,
		UserID:          o.UserID,
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		TotalAmount:     o.TotalAmount,
		Email:           o.Email,
		ShippingAddress: o.ShippingAddress,
		ShippingCity:    o.ShippingCity,
		ShippingCountry: o.ShippingCountry,
		ShippingZip:     o.ShippingZip,
		Notes:           o.Notes,
		TransactionID:   o.TransactionID,
		PaymentMethod:   o.PaymentMethod,
		CreatedAt:       o.CreatedAt,
		Items:           outItems,
	}
}
