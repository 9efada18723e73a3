package tokenfakerepo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/jrsteele09/energy-community-auth/internal/errors"
	"github.com/jrsteele09/energy-community-auth/token"
)

var _ token.RevocationStore = (*FakeRevocationStore)(nil)

type FakeRevocationStore struct {
	families map[uuid.UUID]token.Family
	nowFunc  func() time.Time
	lock     sync.RWMutex
}

func NewFakeRevocationStore() *FakeRevocationStore {
	return &FakeRevocationStore{
		families: make(map[uuid.UUID]token.Family),
		nowFunc:  time.Now,
	}
}

// SetNowFunc moves the store's clock, used to age families in tests
func (rs *FakeRevocationStore) SetNowFunc(nowFunc func() time.Time) {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	rs.nowFunc = nowFunc
}

func (rs *FakeRevocationStore) Create(ctx context.Context, family *token.Family) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rs.lock.Lock()
	defer rs.lock.Unlock()

	if _, ok := rs.families[family.TokenID]; ok {
		return apperrors.ErrDuplicateTokenID
	}
	rs.families[family.TokenID] = *family
	return nil
}

func (rs *FakeRevocationStore) IsValid(ctx context.Context, tokenID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	rs.lock.RLock()
	defer rs.lock.RUnlock()

	f, ok := rs.families[tokenID]
	return ok && f.ExpiresAt.After(rs.nowFunc()), nil
}

func (rs *FakeRevocationStore) Delete(ctx context.Context, tokenID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	rs.lock.Lock()
	defer rs.lock.Unlock()

	if _, ok := rs.families[tokenID]; !ok {
		return false, nil
	}
	delete(rs.families, tokenID)
	return true, nil
}

func (rs *FakeRevocationStore) DeleteAllForSubject(ctx context.Context, subjectID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rs.lock.Lock()
	defer rs.lock.Unlock()

	for id, f := range rs.families {
		if f.SubjectID == subjectID {
			delete(rs.families, id)
		}
	}
	return nil
}

// Count returns how many families are held, expired or not
func (rs *FakeRevocationStore) Count() int {
	rs.lock.RLock()
	defer rs.lock.RUnlock()
	return len(rs.families)
}
