package sentry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledWithoutDSN(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)
	assert.False(t, c.Enabled())

	c.CaptureError(context.Background(), errors.New("boom"), map[string]string{"op": "fight"})
	c.RecoverWithContext(context.Background(), "panic")
	assert.Equal(t, Stats{}, c.Stats())
	assert.True(t, c.Flush(0))
	assert.NoError(t, c.Close())
}

func TestValidate(t *testing.T) {
	var nilCfg *Config
	assert.ErrorIs(t, nilCfg.Validate(), ErrNilConfig)

	cfg := DefaultConfig()
	cfg.SampleRate = 2
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestEnabledWithDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DSN = "https://public@sentry.example.com/1"
	c, err := New(cfg)
	require.NoError(t, err)
	assert.True(t, c.Enabled())
	require.NoError(t, c.Close())
	assert.False(t, c.Enabled())
}
