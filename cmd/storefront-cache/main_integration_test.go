//go:build integration

package main

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/storefront-cache/pkg/cache"
	"github.com/Sternrassler/storefront-cache/pkg/config"
)

func setupRedisContainer(t *testing.T) (string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	return host + ":" + port.Port(), func() { redisC.Terminate(ctx) }
}

func TestOpenStore_Redis_Integration(t *testing.T) {
	addr, cleanup := setupRedisContainer(t)
	defer cleanup()

	ctx := context.Background()
	store, redisClient, err := openStore(ctx, config.Config{Backend: config.BackendRedis, RedisAddr: addr})
	if err != nil {
		t.Fatalf("openStore() error = %v", err)
	}
	if redisClient == nil {
		t.Fatal("Expected Redis client for shared rate limit state")
	}

	manager := cache.NewManager(store)
	defer manager.Close()

	env := setupTestEnv(t, false)
	fetch := cache.ServerFetch{}
	profile, err := env.background.client.FetchProfile(ctx, "omega")
	if err != nil {
		t.Fatalf("FetchProfile() error = %v", err)
	}
	fetch.Profile = profile

	summary := manager.WriteFromServerFetch(ctx, "omega", fetch)
	if len(summary.Written) != 1 {
		t.Fatalf("Expected profile written, got %+v", summary)
	}
	if res := manager.ReadProfile(ctx, "omega"); !res.OK() {
		t.Errorf("Expected valid profile from Redis, got %s (%v)", res.Status, res.Err)
	}
	if removed := manager.InvalidateStore(ctx, "omega"); removed != 1 {
		t.Errorf("Expected 1 removed key, got %d", removed)
	}
}
