package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 発送・履行の状態（管理者が変更する）
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// 正常系の順番。cancelledは含まない
var orderStatusFlow = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
}

func (s OrderStatus) Valid() bool {
	return s == OrderStatusCancelled || s.rank() >= 0
}

// delivered / cancelled は終端
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo は前進（飛ばしOK）か、終端以外からのcancelledだけ許可する。
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if !s.Valid() || !next.Valid() || s.IsTerminal() {
		return false
	}
	if next == OrderStatusCancelled {
		return true
	}
	return next.rank() > s.rank()
}

func (s OrderStatus) rank() int {
	for i, st := range orderStatusFlow {
		if st == s {
			return i
		}
	}
	return -1
}

// 支払いの状態（webhookだけが変更する）
type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	PaymentStatusPaid   PaymentStatus = "paid"
	PaymentStatusFailed PaymentStatus = "failed"
)

// Order は注文ヘッダ。total_amountは作成時にサーバーで計算し、以後変更しない。
type Order struct {
	ID              string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID          *string         `gorm:"type:varchar(36);index" json:"user_id"`
	Status          OrderStatus     `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentStatus   PaymentStatus   `gorm:"type:varchar(20);not null;index" json:"payment_status"`
	TotalAmount     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	Email           *string         `gorm:"type:varchar(255)" json:"email"`
	ShippingAddress *string         `gorm:"type:varchar(500)" json:"shipping_address"`
	ShippingCity    *string         `gorm:"type:varchar(120)" json:"shipping_city"`
	ShippingCountry *string         `gorm:"type:varchar(120)" json:"shipping_country"`
	ShippingZip     *string         `gorm:"type:varchar(20)" json:"shipping_zip"`
	Notes           *string         `gorm:"type:text" json:"notes"`
	TransactionID   *string         `gorm:"type:varchar(255);index" json:"transaction_id"`
	PaymentMethod   *string         `gorm:"type:varchar(50)" json:"payment_method"`
	CreatedAt       time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
