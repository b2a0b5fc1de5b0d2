package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/redis/go-redis/v9"
)

// ゲストのカート。ownerはクライアントが持つカートトークン。
// 1カート = 1ハッシュ（field: kind:reference_id, value: CartLineのJSON）
type CartRedisRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCartRedisRepository(rdb *redis.Client, ttl time.Duration) *CartRedisRepository {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &CartRedisRepository{rdb: rdb, ttl: ttl}
}

var _ repo.CartStore = (*CartRedisRepository)(nil)

func guestCartKey(token string) string {
	return "cart:guest:" + token
}

func cartField(kind model.ItemKind, refID string) string {
	return string(kind) + ":" + refID
}

func (r *CartRedisRepository) Lines(ctx context.Context, token string) ([]model.CartLine, error) {
	raw, err := r.rdb.HGetAll(ctx, guestCartKey(token)).Result()
	if err != nil {
		return nil, err
	}

	lines := make([]model.CartLine, 0, len(raw))
	for _, v := range raw {
		var l model.CartLine
		if err := json.Unmarshal([]byte(v), &l); err != nil {
			// 壊れた行は無視
			continue
		}
		lines = append(lines, l)
	}
	sort.Slice(lines, func(i, j int) bool {
		return cartField(lines[i].Kind, lines[i].ReferenceID) < cartField(lines[j].Kind, lines[j].ReferenceID)
	})
	return lines, nil
}

func (r *CartRedisRepository) Add(ctx context.Context, token string, line model.CartLine) error {
	if line.Quantity <= 0 {
		return errors.New("invalid quantity")
	}

	key := guestCartKey(token)
	field := cartField(line.Kind, line.ReferenceID)

	// 読んで足して書く間に他の書き込みがあればやり直す
	return r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, key, field).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			var existing model.CartLine
			if jerr := json.Unmarshal([]byte(cur), &existing); jerr == nil {
				line.Quantity += existing.Quantity
			}
		}

		data, err := json.Marshal(line)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, field, data)
			p.Expire(ctx, key, r.ttl)
			return nil
		})
		return err
	}, key)
}

func (r *CartRedisRepository) SetQuantity(ctx context.Context, token string, kind model.ItemKind, refID string, qty int64) error {
	key := guestCartKey(token)
	field := cartField(kind, refID)

	exists, err := r.rdb.HExists(ctx, key, field).Result()
	if err != nil {
		return err
	}
	if !exists {
		return repo.ErrNotFound
	}

	data, err := json.Marshal(model.CartLine{Kind: kind, ReferenceID: refID, Quantity: qty})
	if err != nil {
		return err
	}
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, key, field, data)
	pipe.Expire(ctx, key, r.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *CartRedisRepository) Remove(ctx context.Context, token string, kind model.ItemKind, refID string) error {
	n, err := r.rdb.HDel(ctx, guestCartKey(token), cartField(kind, refID)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *CartRedisRepository) Clear(ctx context.Context, token string) error {
	return r.rdb.Del(ctx, guestCartKey(token)).Err()
}
