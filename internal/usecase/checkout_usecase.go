package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"storefront/internal/domain/model"
	"storefront/internal/infra/gateway"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
)

type CheckoutConfig struct {
	Currency          string
	DefaultSuccessURL string
	DefaultFailureURL string
	WebhookURL        string
	// リダイレクト先として受け付けるオリジン（scheme://host）
	AllowedRedirectOrigin string
}

type CheckoutUsecase struct {
	tx      repo.TransactionManager
	gateway CheckoutGateway
	cfg     CheckoutConfig
	log     *slog.Logger
}

func NewCheckoutUsecase(tx repo.TransactionManager, gw CheckoutGateway, cfg CheckoutConfig, log *slog.Logger) *CheckoutUsecase {
	if log == nil {
		log = slog.Default()
	}
	return &CheckoutUsecase{tx: tx, gateway: gw, cfg: cfg, log: log}
}

type CreateCheckoutInput struct {
	OrderID    string
	SuccessURL string
	FailureURL string
}

type CheckoutOutput struct {
	CheckoutURL string `json:"checkout_url"`
}

// CreateCheckoutSession は保存済みの注文に対してゲートウェイのチェックアウトを作る。
// 失敗しても注文はpending/unpaidのまま残り、再実行で新しいセッションを作れる
func (u *CheckoutUsecase) CreateCheckoutSession(ctx context.Context, userID string, in CreateCheckoutInput) (CheckoutOutput, error) {
	if userID == "" {
		return CheckoutOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	orderID := strings.TrimSpace(in.OrderID)
	if _, err := uuid.Parse(orderID); err != nil {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "invalid orderId")
	}

	successURL, err := u.redirectURL(in.SuccessURL, u.cfg.DefaultSuccessURL)
	if err != nil {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "invalid successUrl")
	}
	failureURL, err := u.redirectURL(in.FailureURL, u.cfg.DefaultFailureURL)
	if err != nil {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "invalid failureUrl")
	}

	var order model.Order
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		// ゲスト注文（user_idなし）は注文IDを知っていれば支払える
		if o.UserID != nil && *o.UserID != userID {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		order = o
		return nil
	})
	if err != nil {
		return CheckoutOutput{}, err
	}

	if order.PaymentStatus == model.PaymentStatusPaid {
		return CheckoutOutput{}, NewHTTPError(http.StatusConflict, "order already paid")
	}
	if order.Status == model.OrderStatusCancelled {
		return CheckoutOutput{}, NewHTTPError(http.StatusConflict, "order cancelled")
	}

	session, err := u.gateway.CreateCheckout(ctx, gateway.CheckoutRequest{
		Amount:          order.TotalAmount,
		Currency:        u.cfg.Currency,
		SuccessURL:      successURL,
		FailureURL:      failureURL,
		WebhookEndpoint: u.cfg.WebhookURL,
		Metadata:        map[string]string{"order_id": order.ID},
	})
	if err != nil {
		u.log.ErrorContext(ctx, "checkout initiation failed", "order_id", order.ID, "error", err)
		return CheckoutOutput{}, NewHTTPError(http.StatusBadGateway, "checkout initiation failed")
	}

	u.log.InfoContext(ctx, "checkout session created", "order_id", order.ID, "checkout_id", session.ID)
	return CheckoutOutput{CheckoutURL: session.CheckoutURL}, nil
}

// 空なら既定値。指定されたURLは許可オリジンと一致するものだけ
func (u *CheckoutUsecase) redirectURL(raw, def string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	p, err := url.Parse(raw)
	if err != nil || p.Scheme == "" || p.Host == "" {
		return "", errors.New("invalid url")
	}
	if u.cfg.AllowedRedirectOrigin != "" {
		allowed, err := url.Parse(u.cfg.AllowedRedirectOrigin)
		if err != nil {
			return "", err
		}
		if !strings.EqualFold(p.Scheme, allowed.Scheme) || !strings.EqualFold(p.Host, allowed.Host) {
			return "", errors.New("redirect origin not allowed")
		}
	}
	return p.String(), nil
}
