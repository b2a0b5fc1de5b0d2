package validator

import (
	"errors"
	"fmt"
	"strings"

	"storefront/internal/domain/model"
)

// リクエストの明細（product_id / pack_id のどちらか一方）
type RawCartLine struct {
	ProductID *string `json:"product_id"`
	PackID    *string `json:"pack_id"`
	Quantity  int64   `json:"quantity"`
}

var ErrInvalidLine = errors.New("invalid cart line")

// どの明細がなぜ不正か
type LineError struct {
	Index  int
	Reason string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("items[%d]: %s", e.Index, e.Reason)
}

func (e *LineError) Unwrap() error {
	return ErrInvalidLine
}

// ParseCartLines はリクエストの明細をCartLineに変換する。
// IDの形式や数量の範囲はPricer側で見る
func ParseCartLines(raw []RawCartLine) ([]model.CartLine, error) {
	lines := make([]model.CartLine, 0, len(raw))
	for i, r := range raw {
		line, err := ParseCartLine(r)
		if err != nil {
			return nil, &LineError{Index: i, Reason: err.Error()}
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func ParseCartLine(r RawCartLine) (model.CartLine, error) {
	product := trimmed(r.ProductID)
	pack := trimmed(r.PackID)

	switch {
	case product != "" && pack != "":
		return model.CartLine{}, errors.New("only one of product_id or pack_id is allowed")
	case product != "":
		return model.CartLine{Kind: model.ItemKindProduct, ReferenceID: product, Quantity: r.Quantity}, nil
	case pack != "":
		return model.CartLine{Kind: model.ItemKindPack, ReferenceID: pack, Quantity: r.Quantity}, nil
	default:
		return model.CartLine{}, errors.New("product_id or pack_id is required")
	}
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(*s))
}
