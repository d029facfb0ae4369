package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, RoleAll, cfg.ServiceRole)
	assert.True(t, cfg.RunsBidding())
	assert.True(t, cfg.RunsAuction())
	assert.Equal(t, 5*time.Second, cfg.ConsumerRetryInterval)
	assert.Equal(t, 5, cfg.ConsumerMaxAttempts)
	assert.EqualValues(t, 8085, cfg.HttpServerPort)
}

func TestLoadConfig_Role(t *testing.T) {
	t.Setenv("SERVICE_ROLE", "bidding")
	t.Setenv("BID_PLACE_TIMEOUT", "750ms")
	t.Setenv("IN_MEMORY", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.RunsBidding())
	assert.False(t, cfg.RunsAuction())
	assert.True(t, cfg.InMemory)
	assert.Equal(t, 750*time.Millisecond, cfg.BidPlaceTimeout)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"SERVICE_ROLE":          "gateway",
		"HTTP_SERVER_PORT":      "80",
		"CONSUMER_MAX_ATTEMPTS": "0",
		"BID_PLACE_TIMEOUT":     "soon",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
