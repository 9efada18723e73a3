package staterepo

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/energy-community-auth/internal/errors"
	"github.com/jrsteele09/energy-community-auth/oauth"
)

type entry struct {
	state     oauth.FlowState
	expiresAt time.Time
}

// InMemoryRepo is a thread-safe in-memory implementation of oauth.StateRepo
// for single-instance deployments.
type InMemoryRepo struct {
	mu      sync.Mutex
	states  map[string]entry
	nowFunc func() time.Time
}

var _ oauth.StateRepo = (*InMemoryRepo)(nil)

// NewInMemoryRepo creates a new in-memory auth flow state repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		states:  make(map[string]entry),
		nowFunc: time.Now,
	}
}

// SetNowFunc replaces the clock used for expiry
func (r *InMemoryRepo) SetNowFunc(nowFunc func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nowFunc = nowFunc
}

func (r *InMemoryRepo) Save(ctx context.Context, state *oauth.FlowState, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state == nil || state.State == "" {
		return errors.New("[InMemoryRepo.Save] state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	r.evictExpired(now)
	r.states[state.State] = entry{state: *state, expiresAt: now.Add(ttl)}
	return nil
}

func (r *InMemoryRepo) Consume(ctx context.Context, state string) (*oauth.FlowState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.states[state]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	delete(r.states, state)

	if !e.expiresAt.After(r.nowFunc()) {
		return nil, apperrors.ErrNotFound
	}
	flow := e.state
	return &flow, nil
}

func (r *InMemoryRepo) evictExpired(now time.Time) {
	for k, e := range r.states {
		if !e.expiresAt.After(now) {
			delete(r.states, k)
		}
	}
}
