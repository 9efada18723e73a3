package metrics_test

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jrsteele09/energy-community-auth/internal/errors"
	"github.com/jrsteele09/energy-community-auth/internal/metrics"
)

func TestOutcome(t *testing.T) {
	require.Equal(t, metrics.OutcomeOK, metrics.Outcome(nil))
	require.Equal(t, "invalid_credentials", metrics.Outcome(apperrors.ErrInvalidCredentials))
	require.Equal(t, "invalid_token", metrics.Outcome(errors.Wrap(apperrors.ErrInvalidToken, "[Codec.DecodeAccess]")))
	require.Equal(t, "error", metrics.Outcome(errors.New("connection refused")))
	require.Equal(t, "error", metrics.Outcome(apperrors.ErrHashingFailure))
}

func TestAuth_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewAuth(reg)

	m.Observe("login", nil)
	m.Observe("login", nil)
	m.Observe("login", apperrors.ErrInvalidCredentials)
	m.Swept("sessions", 3)

	expected := `
# HELP auth_operations_total Auth operations by outcome
# TYPE auth_operations_total counter
auth_operations_total{operation="login",outcome="invalid_credentials"} 1
auth_operations_total{operation="login",outcome="ok"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "auth_operations_total"))

	count, err := testutil.GatherAndCount(reg, "auth_expired_records_deleted_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
