package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
)

// ゲートウェイのイベント種別
const (
	EventCheckoutPaid     = "checkout.paid"
	EventCheckoutFailed   = "checkout.failed"
	EventCheckoutCanceled = "checkout.canceled"
)

type WebhookEvent struct {
	ID   string           `json:"id"`
	Type string           `json:"type"`
	Data WebhookEventData `json:"data"`
}

type WebhookEventData struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	// オブジェクトの場合と配列の場合がある
	Metadata json.RawMessage `json:"metadata"`
}

// 支払い状態更新イベントのペイロード
type PaymentUpdatedEvent struct {
	OrderID       string              `json:"order_id"`
	PaymentStatus model.PaymentStatus `json:"payment_status"`
	TransactionID string              `json:"transaction_id"`
	EventType     string              `json:"event_type"`
}

type WebhookUsecase struct {
	tx            repo.TransactionManager
	secret        string
	paymentMethod string
	clock         Clock
	events        EventPublisher
	log           *slog.Logger
}

func NewWebhookUsecase(
	tx repo.TransactionManager,
	secret string,
	paymentMethod string,
	clock Clock,
	events EventPublisher,
	log *slog.Logger,
) *WebhookUsecase {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookUsecase{
		tx:            tx,
		secret:        secret,
		paymentMethod: paymentMethod,
		clock:         clock,
		events:        events,
		log:           log,
	}
}

// HandleWebhook は署名を検証してから支払い状態を反映する。
// 反映できないイベント（不明な種別・注文が見つからない）はnilを返して200で受け取る
func (u *WebhookUsecase) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	//署名なしも拒否する
	if !VerifySignature(u.secret, body, signature) {
		u.log.WarnContext(ctx, "webhook signature rejected", "has_signature", strings.TrimSpace(signature) != "")
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var ev WebhookEvent
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&ev); err != nil {
		return NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(ev.Type) == "" {
		return NewHTTPError(http.StatusBadRequest, "missing type")
	}

	var target model.PaymentStatus
	switch ev.Type {
	case EventCheckoutPaid:
		target = model.PaymentStatusPaid
	case EventCheckoutFailed, EventCheckoutCanceled:
		target = model.PaymentStatusFailed
	default:
		u.log.InfoContext(ctx, "webhook event ignored", "event_id", ev.ID, "type", ev.Type)
		return nil
	}

	if strings.TrimSpace(ev.Data.ID) == "" {
		return NewHTTPError(http.StatusBadRequest, "missing data.id")
	}

	orderID, ok := metadataOrderID(ev.Data.Metadata)
	if !ok {
		u.log.WarnContext(ctx, "webhook without order_id", "event_id", ev.ID, "checkout_id", ev.Data.ID)
		return nil
	}
	if _, err := uuid.Parse(orderID); err != nil {
		u.log.WarnContext(ctx, "webhook with invalid order_id", "event_id", ev.ID, "order_id", orderID)
		return nil
	}

	applied := false
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			u.log.WarnContext(ctx, "webhook for unknown order", "event_id", ev.ID, "order_id", orderID)
			return nil
		}
		if err != nil {
			return err
		}

		// paidは戻さない。同じpaidの再送も何もしない
		if o.PaymentStatus == model.PaymentStatusPaid {
			if target != model.PaymentStatusPaid {
				u.log.WarnContext(ctx, "ignored payment regression", "order_id", orderID, "type", ev.Type)
			}
			return nil
		}

		ok, err := r.Orders().ApplyPayment(ctx, orderID, repo.PaymentUpdate{
			Status:        target,
			TransactionID: ev.Data.ID,
			PaymentMethod: u.paymentMethod,
		})
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		beforeJSON, _ := json.Marshal(map[string]any{
			"payment_status": o.PaymentStatus,
			"transaction_id": o.TransactionID,
		})
		afterJSON, _ := json.Marshal(map[string]any{
			"payment_status": target,
			"transaction_id": ev.Data.ID,
			"event_type":     ev.Type,
		})
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			Actor:        model.AuditActorGateway,
			Action:       model.AuditActionReconcilePayment,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   orderID,
			BeforeJSON:   string(beforeJSON),
			AfterJSON:    string(afterJSON),
			CreatedAt:    u.clock.Now(),
		}); err != nil {
			return err
		}

		applied = true
		return nil
	})
	if err != nil {
		//ゲートウェイに再送させる
		u.log.ErrorContext(ctx, "webhook persistence failed", "order_id", orderID, "error", err)
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if !applied {
		return nil
	}

	u.log.InfoContext(ctx, "payment reconciled", "order_id", orderID, "payment_status", target, "transaction_id", ev.Data.ID)
	if perr := u.events.Publish(ctx, EventOrderPaymentUpdated, PaymentUpdatedEvent{
		OrderID:       orderID,
		PaymentStatus: target,
		TransactionID: ev.Data.ID,
		EventType:     ev.Type,
	}); perr != nil {
		u.log.WarnContext(ctx, "publish order.payment_updated failed", "order_id", orderID, "error", perr)
	}
	return nil
}

// metadataからorder_idを取り出す。推測はしない
func metadataOrderID(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		return orderIDFrom(obj)
	}

	var arr []map[string]any
	if err := json.Unmarshal(raw, &arr); err == nil {
		for _, m := range arr {
			if id, ok := orderIDFrom(m); ok {
				return id, true
			}
		}
	}
	return "", false
}

func orderIDFrom(m map[string]any) (string, bool) {
	s, ok := m["order_id"].(string)
	s = strings.TrimSpace(s)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
