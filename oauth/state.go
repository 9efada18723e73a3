package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/pkg/errors"
)

const stateLength = 32

// FlowState binds one in-flight authorization attempt to the state value the
// provider must echo back.
type FlowState struct {
	State        string    `json:"state"`
	Provider     string    `json:"provider"`
	CodeVerifier string    `json:"code_verifier"`
	CreatedAt    time.Time `json:"created_at"`
}

// StateRepo stores flow states for a limited time. Consume returns a state at
// most once; absent or expired states are ErrNotFound.
type StateRepo interface {
	Save(ctx context.Context, state *FlowState, ttl time.Duration) error
	Consume(ctx context.Context, state string) (*FlowState, error)
}

// GenerateState creates a random base64url state value
func GenerateState() (string, error) {
	b := make([]byte, stateLength)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "[GenerateState]")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
