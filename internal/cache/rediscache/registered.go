package rediscache

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const registeredKey = "17track:registered"

// RegisteredCodes — набор трек-кодов, уже поставленных на отслеживание
// у агрегатора. Нужен, чтобы не дёргать /register на каждое разрешение.
type RegisteredCodes struct {
	c *redis.Client
}

func NewRegisteredCodes(addr string) *RegisteredCodes {
	return &RegisteredCodes{
		c: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func (r *RegisteredCodes) Contains(ctx context.Context, code string) (bool, error) {
	ok, err := r.c.SIsMember(ctx, registeredKey, code).Result()
	return ok, errors.Wrap(err, "redis sismember")
}

func (r *RegisteredCodes) Add(ctx context.Context, code string) error {
	return errors.Wrap(r.c.SAdd(ctx, registeredKey, code).Err(), "redis sadd")
}

// Reset сбрасывает весь набор. Используется админской операцией,
// когда нужно перерегистрировать коды после смены 17TRACK-аккаунта.
func (r *RegisteredCodes) Reset(ctx context.Context) (int64, error) {
	card, err := r.c.SCard(ctx, registeredKey).Result()
	if err != nil {
		return 0, errors.Wrap(err, "redis scard")
	}
	if err := r.c.Del(ctx, registeredKey).Err(); err != nil {
		return 0, errors.Wrap(err, "redis del")
	}
	return card, nil
}
