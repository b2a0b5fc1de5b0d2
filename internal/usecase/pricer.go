package usecase

import (
	"context"
	"fmt"
	"net/http"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// 1行あたりの数量上限の既定値
const DefaultMaxLineQuantity int64 = 10000

// 在庫を確保する品目（同じ品目は合算済み）
type StockReservation struct {
	Kind     model.ItemKind
	ItemID   string
	Name     string
	Quantity int64
}

// Pricing は価格計算の結果。Itemsのid/order_idは未設定
type Pricing struct {
	TotalAmount  decimal.Decimal
	Items        []model.OrderItem
	Reservations []StockReservation
}

// Pricer はカートを現在のカタログで検証して価格を計算する。書き込みはしないのでリトライ安全
type Pricer struct {
	catalog repo.CatalogReader
	maxQty  int64
}

func NewPricer(catalog repo.CatalogReader, maxQty int64) *Pricer {
	if maxQty <= 0 {
		maxQty = DefaultMaxLineQuantity
	}
	return &Pricer{catalog: catalog, maxQty: maxQty}
}

func (p *Pricer) MaxLineQuantity() int64 {
	return p.maxQty
}

// ValidateLines はカタログを見ずにできるチェックだけ行う
func ValidateLines(lines []model.CartLine, maxQty int64) error {
	if len(lines) == 0 {
		return NewHTTPError(http.StatusBadRequest, "cart empty")
	}
	for i, l := range lines {
		if !l.Kind.Valid() {
			return NewHTTPError(http.StatusBadRequest, fmt.Sprintf("items[%d]: invalid kind", i))
		}
		if _, err := uuid.Parse(l.ReferenceID); err != nil {
			return NewHTTPError(http.StatusBadRequest, fmt.Sprintf("items[%d]: invalid %s_id", i, l.Kind))
		}
		if l.Quantity < 1 || l.Quantity > maxQty {
			return NewHTTPError(http.StatusBadRequest, fmt.Sprintf("items[%d]: quantity must be between 1 and %d", i, maxQty))
		}
	}
	return nil
}

func (p *Pricer) Price(ctx context.Context, lines []model.CartLine) (Pricing, error) {
	if err := ValidateLines(lines, p.maxQty); err != nil {
		return Pricing{}, err
	}

	//種類ごとにまとめて1回ずつ取得（N+1にしない）
	var productIDs, packIDs []string
	seen := make(map[string]bool, len(lines))
	for _, l := range lines {
		k := catalogKey(l.Kind, l.ReferenceID)
		if seen[k] {
			continue
		}
		seen[k] = true
		if l.Kind == model.ItemKindProduct {
			productIDs = append(productIDs, l.ReferenceID)
		} else {
			packIDs = append(packIDs, l.ReferenceID)
		}
	}

	var products, packs []model.CatalogItem
	g, gctx := errgroup.WithContext(ctx)
	if len(productIDs) > 0 {
		g.Go(func() error {
			var err error
			products, err = p.catalog.GetProducts(gctx, productIDs)
			return err
		})
	}
	if len(packIDs) > 0 {
		g.Go(func() error {
			var err error
			packs, err = p.catalog.GetPacks(gctx, packIDs)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Pricing{}, NewHTTPError(http.StatusServiceUnavailable, "catalog unavailable")
	}

	catalog := make(map[string]model.CatalogItem, len(products)+len(packs))
	for _, it := range products {
		catalog[catalogKey(model.ItemKindProduct, it.ID)] = it
	}
	for _, it := range packs {
		catalog[catalogKey(model.ItemKindPack, it.ID)] = it
	}

	out := Pricing{
		TotalAmount: decimal.Zero,
		Items:       make([]model.OrderItem, 0, len(lines)),
	}
	demand := make(map[string]int64, len(lines))
	reserveIdx := make(map[string]int)

	for i, l := range lines {
		k := catalogKey(l.Kind, l.ReferenceID)
		item, ok := catalog[k]
		if !ok || !item.IsActive {
			return Pricing{}, NewHTTPError(http.StatusConflict, fmt.Sprintf("item unavailable: items[%d]", i))
		}

		//同じ品目が複数行あれば合計で在庫チェック
		demand[k] += l.Quantity
		if item.StockQuantity != nil {
			if *item.StockQuantity < demand[k] {
				return Pricing{}, NewHTTPError(http.StatusConflict, fmt.Sprintf("insufficient stock for items[%d]: %s", i, item.Name))
			}
			if idx, ok := reserveIdx[k]; ok {
				out.Reservations[idx].Quantity += l.Quantity
			} else {
				reserveIdx[k] = len(out.Reservations)
				out.Reservations = append(out.Reservations, StockReservation{
					Kind:     item.Kind,
					ItemID:   item.ID,
					Name:     item.Name,
					Quantity: l.Quantity,
				})
			}
		}

		//スナップショット
		oi := model.OrderItem{
			ProductName:  item.Name,
			ProductPrice: item.UnitPrice,
			Quantity:     l.Quantity,
		}
		ref := item.ID
		if item.Kind == model.ItemKindPack {
			oi.PackID = &ref
		} else {
			oi.ProductID = &ref
		}
		out.Items = append(out.Items, oi)

		out.TotalAmount = out.TotalAmount.Add(item.UnitPrice.Mul(decimal.NewFromInt(l.Quantity)))
	}

	return out, nil
}

func catalogKey(kind model.ItemKind, id string) string {
	return string(kind) + ":" + id
}
