package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kyu4583/realticket-gatling-simulations/internal/utils"
)

const accountsKey = "accounts"

// AccountStore keeps login ids and bcrypt hashes in a Redis hash.
type AccountStore struct {
	rdb *redis.Client
}

func NewAccountStore(rdb *redis.Client) *AccountStore { return &AccountStore{rdb: rdb} }

// Create stores one account, replacing any existing hash.
func (r *AccountStore) Create(ctx context.Context, login, password string, cost int) error {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return err
	}
	return r.rdb.HSet(ctx, accountsKey, login, hash).Err()
}

// Seed creates accounts test1..testN with passwords testpw1..testpwN, the
// credentials the load generator derives from its user numbers.
func (r *AccountStore) Seed(ctx context.Context, n, cost int) error {
	const batch = 500
	fields := make([]interface{}, 0, 2*batch)
	flush := func() error {
		if len(fields) == 0 {
			return nil
		}
		err := r.rdb.HSet(ctx, accountsKey, fields...).Err()
		fields = fields[:0]
		return err
	}
	for i := 1; i <= n; i++ {
		hash, err := utils.HashPassword(fmt.Sprintf("testpw%d", i), cost)
		if err != nil {
			return err
		}
		fields = append(fields, fmt.Sprintf("test%d", i), hash)
		if len(fields) == 2*batch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// Verify checks a login.  Unknown logins and wrong passwords both return
// ErrInvalidCredentials.
func (r *AccountStore) Verify(ctx context.Context, login, password string) error {
	hash, err := r.rdb.HGet(ctx, accountsKey, login).Result()
	if errors.Is(err, redis.Nil) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return err
	}
	if !utils.VerifyPassword(hash, password) {
		return ErrInvalidCredentials
	}
	return nil
}

// Count returns the number of stored accounts.
func (r *AccountStore) Count(ctx context.Context) (int64, error) {
	return r.rdb.HLen(ctx, accountsKey).Result()
}
