package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/jrsteele09/energy-community-auth/internal/errors"
)

const OutcomeOK = "ok"

var outcomes = []struct {
	err   error
	label string
}{
	{apperrors.ErrInvalidCredentials, "invalid_credentials"},
	{apperrors.ErrInvalidToken, "invalid_token"},
	{apperrors.ErrEmailAlreadyInUse, "email_in_use"},
	{apperrors.ErrEmailNotVerified, "email_not_verified"},
	{apperrors.ErrOAuthExchangeFailure, "oauth_exchange_failure"},
	{apperrors.ErrInvalidState, "invalid_state"},
	{apperrors.ErrUnknownProvider, "unknown_provider"},
	{apperrors.ErrUnsupported, "unsupported"},
}

// Outcome turns an operation result into a bounded label value.
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	for _, o := range outcomes {
		if apperrors.Is(err, o.err) {
			return o.label
		}
	}
	return "error"
}

// Auth holds the counters for auth operations and expiry sweeps.
type Auth struct {
	operations *prometheus.CounterVec
	swept      *prometheus.CounterVec
}

func NewAuth(reg prometheus.Registerer) *Auth {
	factory := promauto.With(reg)
	return &Auth{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_operations_total",
			Help: "Auth operations by outcome",
		}, []string{"operation", "outcome"}),
		swept: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_expired_records_deleted_total",
			Help: "Expired credential records removed by the sweeper",
		}, []string{"store"}),
	}
}

func (a *Auth) Observe(operation string, err error) {
	a.operations.WithLabelValues(operation, Outcome(err)).Inc()
}

func (a *Auth) Swept(store string, n int64) {
	a.swept.WithLabelValues(store).Add(float64(n))
}
