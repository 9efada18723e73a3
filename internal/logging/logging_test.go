package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/energy-community-auth/internal/logging"
)

func TestNew_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: "debug", App: "auth", Env: "TEST"}, &buf)

	logger.Debug().Str("account_id", "a-1").Msg("account registered")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "debug", entry["level"])
	require.Equal(t, "auth", entry["service"])
	require.Equal(t, "TEST", entry["env"])
	require.Equal(t, "a-1", entry["account_id"])
	require.Equal(t, "account registered", entry["message"])
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: "WARN"}, &buf)

	logger.Info().Msg("dropped")
	require.Zero(t, buf.Len())

	logger.Warn().Msg("kept")
	require.Contains(t, buf.String(), "kept")
}

func TestNew_UnknownLevelIsInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: "chatty"}, &buf)

	logger.Debug().Msg("dropped")
	logger.Info().Msg("kept")
	require.NotContains(t, buf.String(), "dropped")
	require.Contains(t, buf.String(), "kept")
}
