package usecase

import (
	"context"
	"net/http"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartOwner はカートの持ち主。ログイン中ならUserID、ゲストならGuestToken（X-Cart-Token）
type CartOwner struct {
	UserID     string
	GuestToken string
}

// CartUsecase は /cart の業務ロジック。
// ログインユーザーはDB、ゲストはRedisに保存する（ログイン時のマージはしない）
type CartUsecase struct {
	users  repo.CartStore
	guests repo.CartStore
	pricer *Pricer
}

func NewCartUsecase(users repo.CartStore, guests repo.CartStore, pricer *Pricer) *CartUsecase {
	return &CartUsecase{users: users, guests: guests, pricer: pricer}
}

type CartResponse struct {
	Items []model.CartLine `json:"items"`
}

type QuoteLine struct {
	Kind        model.ItemKind  `json:"kind"`
	ReferenceID string          `json:"reference_id"`
	Name        string          `json:"name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int64           `json:"quantity"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type QuoteResponse struct {
	Items       []QuoteLine     `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type UpdateCartItemInput struct {
	Kind        model.ItemKind
	ReferenceID string
	Quantity    int64
}

func (u *CartUsecase) store(owner CartOwner) (repo.CartStore, string, error) {
	if owner.UserID != "" {
		return u.users, owner.UserID, nil
	}
	if owner.GuestToken == "" {
		return nil, "", NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if _, err := uuid.Parse(owner.GuestToken); err != nil {
		return nil, "", NewHTTPError(http.StatusBadRequest, "invalid cart token")
	}
	if u.guests == nil {
		return nil, "", NewHTTPError(http.StatusServiceUnavailable, "guest cart unavailable")
	}
	return u.guests, owner.GuestToken, nil
}

// GetCart はカート取得（無ければ空）
func (u *CartUsecase) GetCart(ctx context.Context, owner CartOwner) (CartResponse, error) {
	s, key, err := u.store(owner)
	if err != nil {
		return CartResponse{}, err
	}
	return u.buildCartResponse(ctx, s, key)
}

// AddLine はカートに追加（同一品目は数量加算）。合計数量で購入可否と在庫を確認する
func (u *CartUsecase) AddLine(ctx context.Context, owner CartOwner, line model.CartLine) (CartResponse, error) {
	s, key, err := u.store(owner)
	if err != nil {
		return CartResponse{}, err
	}
	if err := ValidateLines([]model.CartLine{line}, u.pricer.MaxLineQuantity()); err != nil {
		return CartResponse{}, err
	}

	lines, err := s.Lines(ctx, key)
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	newQty := line.Quantity
	for _, l := range lines {
		if l.Kind == line.Kind && l.ReferenceID == line.ReferenceID {
			newQty += l.Quantity
			break
		}
	}

	merged := line
	merged.Quantity = newQty
	if _, err := u.pricer.Price(ctx, []model.CartLine{merged}); err != nil {
		return CartResponse{}, err
	}

	if err := s.Add(ctx, key, line); err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return u.buildCartResponse(ctx, s, key)
}

// 数量変更
func (u *CartUsecase) UpdateQuantity(ctx context.Context, owner CartOwner, in UpdateCartItemInput) (CartResponse, error) {
	s, key, err := u.store(owner)
	if err != nil {
		return CartResponse{}, err
	}
	line := model.CartLine{Kind: in.Kind, ReferenceID: in.ReferenceID, Quantity: in.Quantity}
	if err := ValidateLines([]model.CartLine{line}, u.pricer.MaxLineQuantity()); err != nil {
		return CartResponse{}, err
	}
	if _, err := u.pricer.Price(ctx, []model.CartLine{line}); err != nil {
		return CartResponse{}, err
	}

	if err := s.SetQuantity(ctx, key, in.Kind, in.ReferenceID, in.Quantity); err != nil {
		if err == repo.ErrNotFound {
			return CartResponse{}, NewHTTPError(http.StatusNotFound, "not found")
		}
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return u.buildCartResponse(ctx, s, key)
}

// 明細削除
func (u *CartUsecase) RemoveLine(ctx context.Context, owner CartOwner, kind model.ItemKind, refID string) (CartResponse, error) {
	s, key, err := u.store(owner)
	if err != nil {
		return CartResponse{}, err
	}
	if !kind.Valid() {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid kind")
	}
	if _, err := uuid.Parse(refID); err != nil {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	if err := s.Remove(ctx, key, kind, refID); err != nil {
		if err == repo.ErrNotFound {
			return CartResponse{}, NewHTTPError(http.StatusNotFound, "not found")
		}
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return u.buildCartResponse(ctx, s, key)
}

// 注文後などにカートを空にする
func (u *CartUsecase) Clear(ctx context.Context, owner CartOwner) error {
	s, key, err := u.store(owner)
	if err != nil {
		return err
	}
	if err := s.Clear(ctx, key); err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

// Quote は現在のカタログ価格でカートを見積もる（書き込みなし）
func (u *CartUsecase) Quote(ctx context.Context, owner CartOwner) (QuoteResponse, error) {
	s, key, err := u.store(owner)
	if err != nil {
		return QuoteResponse{}, err
	}
	lines, err := s.Lines(ctx, key)
	if err != nil {
		return QuoteResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if len(lines) == 0 {
		return QuoteResponse{Items: []QuoteLine{}, TotalAmount: decimal.Zero}, nil
	}

	pricing, err := u.pricer.Price(ctx, lines)
	if err != nil {
		return QuoteResponse{}, err
	}

	out := QuoteResponse{Items: make([]QuoteLine, 0, len(pricing.Items)), TotalAmount: pricing.TotalAmount}
	for _, it := range pricing.Items {
		kind, ref := it.Ref()
		out.Items = append(out.Items, QuoteLine{
			Kind:        kind,
			ReferenceID: ref,
			Name:        it.ProductName,
			UnitPrice:   it.ProductPrice,
			Quantity:    it.Quantity,
			LineTotal:   it.ProductPrice.Mul(decimal.NewFromInt(it.Quantity)),
		})
	}
	return out, nil
}

func (u *CartUsecase) buildCartResponse(ctx context.Context, s repo.CartStore, key string) (CartResponse, error) {
	lines, err := s.Lines(ctx, key)
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if lines == nil {
		lines = []model.CartLine{}
	}
	return CartResponse{Items: lines}, nil
}
