package staterepo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/jrsteele09/energy-community-auth/internal/errors"
	"github.com/jrsteele09/energy-community-auth/oauth"
)

const defaultKeyPrefix = "oauth:state:"

// RedisRepo shares flow states between instances. Expiry is delegated to the
// key TTL and GETDEL makes consumption one-time across instances.
type RedisRepo struct {
	client redis.UniversalClient
	prefix string
}

var _ oauth.StateRepo = (*RedisRepo)(nil)

func NewRedisRepo(client redis.UniversalClient, prefix string) *RedisRepo {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisRepo{client: client, prefix: prefix}
}

func (r *RedisRepo) Save(ctx context.Context, state *oauth.FlowState, ttl time.Duration) error {
	if state == nil || state.State == "" {
		return errors.New("[RedisRepo.Save] state cannot be empty")
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "[RedisRepo.Save] marshal")
	}
	if err := r.client.Set(ctx, r.prefix+state.State, payload, ttl).Err(); err != nil {
		return errors.Wrap(err, "[RedisRepo.Save]")
	}
	return nil
}

func (r *RedisRepo) Consume(ctx context.Context, state string) (*oauth.FlowState, error) {
	payload, err := r.client.GetDel(ctx, r.prefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[RedisRepo.Consume]")
	}

	var flow oauth.FlowState
	if err := json.Unmarshal(payload, &flow); err != nil {
		return nil, errors.Wrap(err, "[RedisRepo.Consume] unmarshal")
	}
	return &flow, nil
}
