package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

type AdminOrderListFilter struct {
	Page          int
	Limit         int
	Status        string
	PaymentStatus string
	UserID        *string
	From          *time.Time
	To            *time.Time
}

// webhookで反映する支払い結果
type PaymentUpdate struct {
	Status        model.PaymentStatus
	TransactionID string
	PaymentMethod string
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID string) (model.Order, error)
	ListByUserID(ctx context.Context, userID string, page int, limit int) ([]model.Order, int64, error)
	Create(ctx context.Context, order model.Order) error
	// 明細の作成に失敗したときの補償削除
	Delete(ctx context.Context, orderID string) error
	UpdateStatus(ctx context.Context, orderID string, status model.OrderStatus) error

	// 支払い結果を反映する。paid済み・同じ内容の再送なら何もしないでfalse
	ApplyPayment(ctx context.Context, orderID string, u PaymentUpdate) (bool, error)

	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)
}
