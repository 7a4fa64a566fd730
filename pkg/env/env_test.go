package env

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetFallsBackWhenUnset(t *testing.T) {
	t.Setenv("MARKET_TEST_ENV_GET", "")
	require.Equal(t, "8080", Get("MARKET_TEST_ENV_GET", "8080"))

	t.Setenv("MARKET_TEST_ENV_GET", "9090")
	require.Equal(t, "9090", Get("MARKET_TEST_ENV_GET", "8080"))
}
