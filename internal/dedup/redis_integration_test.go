//go:build integration

package dedup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T, ctx context.Context) (testcontainers.Container, string) {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}
	rc, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Fatalf("failed to start redis: %v", err)
	}
	port, err := rc.MappedPort(ctx, "6379")
	if err != nil {
		_ = rc.Terminate(ctx)
		t.Fatalf("failed to get mapped port: %v", err)
	}
	host, err := rc.Host(ctx)
	if err != nil {
		_ = rc.Terminate(ctx)
		t.Fatalf("failed to get host: %v", err)
	}
	return rc, fmt.Sprintf("%s:%s", host, port.Port())
}

func TestRedisStoreAgainstRealRedis(t *testing.T) {
	ctx := context.Background()
	rc, addr := startRedis(t, ctx)
	defer func() { _ = rc.Terminate(ctx) }()

	client, err := Conn(ctx, addr, "", 0, 5*time.Second)
	if err != nil {
		t.Fatalf("Conn: %v", err)
	}
	defer client.Close()

	exerciseStore(t, NewRedisStore(client, time.Minute))

	ttl, err := client.TTL(ctx, key(1)).Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected ttl %s", ttl)
	}
}
