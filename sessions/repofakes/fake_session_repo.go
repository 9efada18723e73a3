package fakesessionrepo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/jrsteele09/energy-community-auth/internal/errors"
	"github.com/jrsteele09/energy-community-auth/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

type FakeSessionRepo struct {
	sessions map[uuid.UUID]sessions.Session
	nowFunc  func() time.Time
	lock     sync.RWMutex
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		sessions: make(map[uuid.UUID]sessions.Session),
		nowFunc:  time.Now,
	}
}

// SetNowFunc moves the repo's clock, used to age sessions in tests
func (sr *FakeSessionRepo) SetNowFunc(nowFunc func() time.Time) {
	sr.lock.Lock()
	defer sr.lock.Unlock()
	sr.nowFunc = nowFunc
}

func (sr *FakeSessionRepo) Create(ctx context.Context, session *sessions.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sr.lock.Lock()
	defer sr.lock.Unlock()

	if _, ok := sr.sessions[session.ID]; ok {
		return apperrors.ErrDuplicateTokenID
	}
	sr.sessions[session.ID] = *session
	return nil
}

func (sr *FakeSessionRepo) GetValid(ctx context.Context, sessionID uuid.UUID) (*sessions.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sr.lock.RLock()
	defer sr.lock.RUnlock()

	s, ok := sr.sessions[sessionID]
	if !ok || !s.ExpiresAt.After(sr.nowFunc()) {
		return nil, apperrors.ErrNotFound
	}
	return &s, nil
}

func (sr *FakeSessionRepo) Delete(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	sr.lock.Lock()
	defer sr.lock.Unlock()

	if _, ok := sr.sessions[sessionID]; !ok {
		return false, nil
	}
	delete(sr.sessions, sessionID)
	return true, nil
}

func (sr *FakeSessionRepo) DeleteAllForSubject(ctx context.Context, subjectID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sr.lock.Lock()
	defer sr.lock.Unlock()

	for id, s := range sr.sessions {
		if s.SubjectID == subjectID {
			delete(sr.sessions, id)
		}
	}
	return nil
}

// Count returns how many sessions are held, expired or not
func (sr *FakeSessionRepo) Count() int {
	sr.lock.RLock()
	defer sr.lock.RUnlock()
	return len(sr.sessions)
}
