package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
)

type AdminOrderUsecase struct {
	tx       repo.TransactionManager
	notifier StatusNotifier
	clock    Clock
}

func NewAdminOrderUsecase(tx repo.TransactionManager, notifier StatusNotifier, clock Clock) *AdminOrderUsecase {
	return &AdminOrderUsecase{tx: tx, notifier: notifier, clock: clock}
}

type AdminUpdateOrderStatusInput struct {
	Status string
}

// 注文一覧
func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) ([]OrderOutput, error) {
	// page/limitの最低限チェック
	if f.Page < 1 {
		return []OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return []OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if f.Status != "" && !model.OrderStatus(f.Status).Valid() {
		return []OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	switch model.PaymentStatus(f.PaymentStatus) {
	case "", model.PaymentStatusUnpaid, model.PaymentStatusPaid, model.PaymentStatusFailed:
	default:
		return []OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid payment_status")
	}

	var outs []OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, _, err := r.Orders().ListAdmin(ctx, f)
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

// ステータス更新（cancelledなら在庫戻し）。変更があればメール通知を非同期で送る
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actorAdminUserID string, orderID string, in AdminUpdateOrderStatusInput) error {
	if actorAdminUserID == "" {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if _, err := uuid.Parse(orderID); err != nil {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	newStatus := model.OrderStatus(strings.ToLower(strings.TrimSpace(in.Status)))
	if !newStatus.Valid() {
		return NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	var before, after model.Order
	changed := false

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 注文取得
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		// すでに同じなら何もしない（200）
		if o.Status == newStatus {
			return nil
		}
		if !o.Status.CanTransitionTo(newStatus) {
			return NewHTTPError(http.StatusBadRequest, "cannot change "+string(o.Status)+" order to "+string(newStatus))
		}

		now := u.clock.Now()

		// cancelledのときだけ、確保した分を戻す
		if newStatus == model.OrderStatusCancelled {
			if err := restoreReservedStock(ctx, r, orderID, now); err != nil {
				return err
			}
		}

		if err := r.Orders().UpdateStatus(ctx, orderID, newStatus); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusNotFound, "not found")
			}
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		// 監査ログ（UPDATE_ORDER_STATUS）
		beforeJSON, _ := json.Marshal(map[string]string{"status": string(o.Status)})
		afterJSON, _ := json.Marshal(map[string]string{"status": string(newStatus)})
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			Actor:        actorAdminUserID,
			Action:       model.AuditActionUpdateOrderStatus,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   orderID,
			BeforeJSON:   string(beforeJSON),
			AfterJSON:    string(afterJSON),
			CreatedAt:    now,
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		before = o
		after = o
		after.Status = newStatus
		after.UpdatedAt = now
		changed = true
		return nil
	})
	if err != nil {
		return err
	}

	// コミット後に通知（失敗してもステータス更新は取り消さない）
	if changed && u.notifier != nil {
		u.notifier.Dispatch(before, after)
	}
	return nil
}

// 監査ログの絞り込み。空文字は条件なし
type AuditTrailQuery struct {
	Actor  string
	Action string
}

// 監査ログ（注文単位、古い順）
func (u *AdminOrderUsecase) AuditTrail(ctx context.Context, orderID string, in AuditTrailQuery) ([]model.AuditLog, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return []model.AuditLog{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	filter := repo.AuditLogFilter{
		ResourceType: model.AuditResourceOrder,
		ResourceID:   orderID,
		Limit:        100,
	}
	if actor := strings.TrimSpace(in.Actor); actor != "" {
		filter.Actor = &actor
	}
	if in.Action != "" {
		action := model.AuditAction(strings.ToUpper(strings.TrimSpace(in.Action)))
		if !action.Valid() {
			return []model.AuditLog{}, NewHTTPError(http.StatusBadRequest, "invalid action")
		}
		filter.Action = &action
	}

	var logs []model.AuditLog
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if _, err := r.Orders().FindByID(ctx, orderID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusNotFound, "not found")
			}
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		var err error
		logs, err = r.AuditLogs().List(ctx, filter)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})
	if err != nil {
		return []model.AuditLog{}, err
	}
	return logs, nil
}

// 注文で確保した在庫を増減履歴から戻す。戻した分もorder_cancelとして記録する
func restoreReservedStock(ctx context.Context, r repo.TxRepos, orderID string, now time.Time) error {
	adjs, err := r.Inventory().ListAdjustmentsByOrder(ctx, orderID)
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	type key struct {
		kind model.ItemKind
		id   string
	}
	outstanding := map[key]int64{}
	var order []key
	for _, a := range adjs {
		k := key{a.ItemKind, a.ItemID}
		if _, ok := outstanding[k]; !ok {
			order = append(order, k)
		}
		outstanding[k] += a.Delta
	}

	for _, k := range order {
		qty := -outstanding[k]
		if qty <= 0 {
			continue
		}
		if err := r.Inventory().IncreaseStock(ctx, k.kind, k.id, qty); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				// 品目が削除済みなら戻し先がない
				continue
			}
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
			ItemKind:  k.kind,
			ItemID:    k.id,
			OrderID:   orderID,
			Delta:     qty,
			Reason:    model.AdjustmentReasonOrderCancel,
			CreatedAt: now,
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
	}
	return nil
}

// 期間パラメータ。handlerでtime.Parseしてここに入れる
func ParseDateTimeRFC3339(s string) (*time.Time, bool) {
	if strings.TrimSpace(s) == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, false
	}
	return &t, true
}
