package usecase

import (
	"context"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/infra/gateway"
	"storefront/internal/infra/mailer"
)

type IDGenerator interface {
	NewID() string
}

type Clock interface {
	Now() time.Time
}

// 決済ゲートウェイのチェックアウト作成
type CheckoutGateway interface {
	CreateCheckout(ctx context.Context, in gateway.CheckoutRequest) (gateway.CheckoutSession, error)
}

type Mailer interface {
	Send(ctx context.Context, m mailer.Message) error
}

// 注文イベントの送信（失敗しても注文処理は止めない）
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, data any) error
}

// ステータス変更通知の非同期送信
type StatusNotifier interface {
	Dispatch(old, cur model.Order)
}

const (
	EventOrderCreated        = "order.created"
	EventOrderPaymentUpdated = "order.payment_updated"
)
