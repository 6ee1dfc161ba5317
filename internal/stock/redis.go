package stock

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "stock:"
	redisIndexKey  = "stock:skus"
)

// Reply codes of the Lua scripts below; non-negative replies are the new quantity.
const (
	redisNotFound     = -1
	redisInsufficient = -2
)

const reserveScript = `
local q = redis.call('HGET', KEYS[1], 'quantity')
if not q then return -1 end
if tonumber(q) < tonumber(ARGV[1]) then return -2 end
return redis.call('HINCRBY', KEYS[1], 'quantity', -tonumber(ARGV[1]))
`

const releaseScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
return redis.call('HINCRBY', KEYS[1], 'quantity', tonumber(ARGV[1]))
`

// RedisLedger keeps one hash per SKU; Reserve runs as a server-side script so
// the check and the decrement cannot interleave with another client.
type RedisLedger struct {
	client *redis.Client
}

func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

func redisKey(sku string) string { return redisKeyPrefix + sku }

func (r *RedisLedger) Reserve(ctx context.Context, sku string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	res, err := r.client.Eval(ctx, reserveScript, []string{redisKey(sku)}, qty).Int64()
	if err != nil {
		return fmt.Errorf("redis reserve %s: %w", sku, err)
	}
	switch res {
	case redisNotFound:
		return ErrSKUNotFound
	case redisInsufficient:
		return ErrInsufficientStock
	}
	return nil
}

func (r *RedisLedger) Release(ctx context.Context, sku string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	res, err := r.client.Eval(ctx, releaseScript, []string{redisKey(sku)}, qty).Int64()
	if err != nil {
		return fmt.Errorf("redis release %s: %w", sku, err)
	}
	if res == redisNotFound {
		return ErrSKUNotFound
	}
	return nil
}

func (r *RedisLedger) Get(ctx context.Context, sku string) (Item, error) {
	fields, err := r.client.HGetAll(ctx, redisKey(sku)).Result()
	if err != nil {
		return Item{}, fmt.Errorf("redis get %s: %w", sku, err)
	}
	if len(fields) == 0 {
		return Item{}, ErrSKUNotFound
	}
	qty, err := strconv.Atoi(fields["quantity"])
	if err != nil {
		return Item{}, fmt.Errorf("redis get %s: bad quantity %q", sku, fields["quantity"])
	}
	return Item{SKU: sku, Name: fields["name"], Quantity: qty}, nil
}

func (r *RedisLedger) Put(ctx context.Context, item Item) error {
	if item.Quantity < 0 {
		return ErrInvalidQuantity
	}
	if err := r.client.HSet(ctx, redisKey(item.SKU), "name", item.Name, "quantity", item.Quantity).Err(); err != nil {
		return fmt.Errorf("redis put %s: %w", item.SKU, err)
	}
	return r.client.SAdd(ctx, redisIndexKey, item.SKU).Err()
}

func (r *RedisLedger) List(ctx context.Context) ([]Item, error) {
	skus, err := r.client.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list: %w", err)
	}
	sort.Strings(skus)
	items := make([]Item, 0, len(skus))
	for _, sku := range skus {
		it, err := r.Get(ctx, sku)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}
