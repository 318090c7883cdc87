package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minimalConfig() *Config {
	c := &Config{Environment: "test"}
	c.Warehouse.Table = "quant.futures_1min"
	return c
}

func TestValidateDefaults(t *testing.T) {
	c := minimalConfig()
	require.NoError(t, c.Validate())

	assert.Equal(t, "QUANT_SERVICE_ACCOUNT", c.Credentials.EnvVar)
	assert.Equal(t, 50000, c.Warehouse.IntradayRowCap)

	// omitted timeouts must still bound outbound calls
	assert.Equal(t, 20*time.Second, c.Oracle.Timeout)
	assert.Equal(t, 15*time.Second, c.LiveFeed.Timeout)
}

func TestValidateKeepsExplicitTimeouts(t *testing.T) {
	c := minimalConfig()
	c.Oracle.Timeout = 5 * time.Second
	c.LiveFeed.Timeout = 3 * time.Second
	require.NoError(t, c.Validate())

	assert.Equal(t, 5*time.Second, c.Oracle.Timeout)
	assert.Equal(t, 3*time.Second, c.LiveFeed.Timeout)
}

func TestValidateRejectsUnknownBackfillBackend(t *testing.T) {
	c := minimalConfig()
	c.Backfill.Enabled = true
	c.Backfill.Backend = "carrier-pigeon"
	assert.Error(t, c.Validate())
}

func TestValidateRequiresEnvironment(t *testing.T) {
	c := &Config{}
	c.Warehouse.Table = "quant.futures_1min"
	assert.Error(t, c.Validate())
}
