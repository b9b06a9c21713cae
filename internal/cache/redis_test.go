package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"reflection-token-lab/internal/domain"
)

// setupRedis starts a Redis container and returns a connected cache.
func setupRedis(t *testing.T) *BalanceCache {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	c := NewBalanceCache(fmt.Sprintf("%s:%s", host, port.Port()), "", 0, 0)
	require.NoError(t, c.Ping(ctx))

	t.Cleanup(func() {
		c.Close()
		_ = container.Terminate(ctx)
	})
	return c
}

func TestBalanceCache_PutGet(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()

	addr := domain.AddressFromSeed("addr3")
	h := domain.Holder{
		Address:    addr,
		Balance:    domain.MustParseUnits("100", 18),
		Reflection: domain.MustParseUnits("100.5", 18),
	}
	require.NoError(t, c.Put(ctx, h))

	got, ok, err := c.Get(ctx, addr)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, h.Balance.Eq(got.Balance))
	assert.True(t, h.Reflection.Eq(got.Reflection))

	require.NoError(t, c.Invalidate(ctx, addr))
	_, ok, err = c.Get(ctx, addr)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBalanceCache_Miss(t *testing.T) {
	c := setupRedis(t)

	_, ok, err := c.Get(context.Background(), domain.AddressFromSeed("nobody"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeys(t *testing.T) {
	addr := domain.AddressFromSeed("owner")
	assert.Equal(t, "balance:"+addr.String(), balanceKey(addr))
	assert.Equal(t, "reflection:"+addr.String(), reflectionKey(addr))
}
