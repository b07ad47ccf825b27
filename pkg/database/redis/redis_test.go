package redis

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	var nilCfg *Config
	assert.ErrorIs(t, nilCfg.Validate(), ErrNilConfig)
	assert.ErrorIs(t, (&Config{}).Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, (&Config{
		Standalone: &NodeConfig{Host: "localhost", Port: 6379},
		Cluster:    &ClusterConfig{Addrs: []string{"a:1"}},
	}).Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, (&Config{Cluster: &ClusterConfig{}}).Validate(), ErrInvalidConfig)
	assert.NoError(t, (&Config{Standalone: &NodeConfig{Host: "localhost", Port: 6379}}).Validate())
}

// 需要本地 Redis：UNDERWORLD_TEST_REDIS_PORT=6379
func TestLockIntegration(t *testing.T) {
	port, err := strconv.Atoi(os.Getenv("UNDERWORLD_TEST_REDIS_PORT"))
	if err != nil {
		t.Skip("UNDERWORLD_TEST_REDIS_PORT not set")
	}

	c, err := NewClient(&Config{Standalone: &NodeConfig{Host: "localhost", Port: port}})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	a := c.NewLock("test:lock:pair", time.Second)
	b := c.NewLock("test:lock:pair", time.Second)

	ok, err := a.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, b.Unlock(ctx), ErrLockNotHeld)
	require.NoError(t, a.Unlock(ctx))

	ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Unlock(ctx))
}
