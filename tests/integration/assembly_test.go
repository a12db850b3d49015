package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/edgekit/esi-assembler/internal/testutil"
	"github.com/edgekit/esi-assembler/pkg/assembler"
	"github.com/edgekit/esi-assembler/pkg/cache"
)

// setupRedis starts a Redis container for integration testing.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	t.Cleanup(func() {
		client.Close()
		container.Terminate(context.Background())
	})

	return client
}

// TestAssemblyWithRedisCache runs the full flow against a real Redis:
// assemble -> cache -> fresh hit -> stale serve + background refresh.
func TestAssemblyWithRedisCache(t *testing.T) {
	redisClient := setupRedis(t)

	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/header", testutil.MockResponse{Body: "<div>v1</div>", CacheControl: "max-age=1"})
	origin.SetResponse("/footer", testutil.MockResponse{Body: "<footer/>", CacheControl: "max-age=300"})

	clock := cache.NewManualClock(time.Now())
	store := cache.NewRedisStoreWithClock(redisClient, clock)

	engine, err := assembler.New(assembler.Config{
		BaseURL: origin.URL(),
		Cache:   store,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	markup := `<body><esi:include src="/header"/><esi:include src="/footer"></esi:include></body>`
	want := `<body><div>v1</div><footer/></body>`

	ctx := context.Background()
	out, err := engine.Process(ctx, markup)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out != want {
		t.Fatalf("Output mismatch: got %q", out)
	}

	// Fresh window: no additional origin traffic.
	out, _ = engine.Process(ctx, markup)
	if out != want {
		t.Fatalf("Cached output mismatch: got %q", out)
	}
	if n := origin.RequestCount("/header"); n != 1 {
		t.Errorf("Expected 1 origin request for /header, got %d", n)
	}

	// Past max-age: the stale value is served while one background
	// refresh picks up the new body.
	origin.SetResponse("/header", testutil.MockResponse{Body: "<div>v2</div>", CacheControl: "max-age=1"})
	clock.Advance(2 * time.Second)

	out, _ = engine.Process(ctx, markup)
	if out != want {
		t.Errorf("Stale serve mismatch: got %q", out)
	}

	engine.WaitBackground()

	out, _ = engine.Process(ctx, `<esi:include src="/header"/>`)
	if out != "<div>v2</div>" {
		t.Errorf("Refreshed output mismatch: got %q", out)
	}
	if n := origin.RequestCount("/header"); n != 2 {
		t.Errorf("Expected exactly one background refresh, got %d total requests", n)
	}
}

// TestRedisCacheSharedAcrossEngines verifies that two engines sharing
// one Redis see each other's cached fragments.
func TestRedisCacheSharedAcrossEngines(t *testing.T) {
	redisClient := setupRedis(t)

	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/shared", testutil.MockResponse{Body: "shared-fragment", CacheControl: "max-age=300"})

	newEngine := func() *assembler.Engine {
		engine, err := assembler.New(assembler.Config{
			BaseURL: origin.URL(),
			Cache:   cache.NewRedisStore(redisClient),
		})
		if err != nil {
			t.Fatalf("Failed to create engine: %v", err)
		}
		return engine
	}

	ctx := context.Background()
	markup := `<esi:include src="/shared"/>`

	for i := 0; i < 3; i++ {
		out, err := newEngine().Process(ctx, markup)
		if err != nil {
			t.Fatalf("Engine %d: Process failed: %v", i, err)
		}
		if out != "shared-fragment" {
			t.Fatalf("Engine %d: output mismatch: %q", i, out)
		}
	}

	if n := origin.RequestCount("/shared"); n != 1 {
		t.Errorf("Fresh Redis entries must be shared: got %d origin requests", n)
	}
}

// TestManyFragmentsUnderLoad assembles a document with many directives
// against Redis to exercise concurrent cache access.
func TestManyFragmentsUnderLoad(t *testing.T) {
	redisClient := setupRedis(t)

	origin := testutil.NewMockOrigin()
	defer origin.Close()

	var markup, want string
	for i := 0; i < 50; i++ {
		path := fmt.Sprintf("/frag%d", i)
		origin.SetResponse(path, testutil.MockResponse{
			Body:         fmt.Sprintf("[%d]", i),
			CacheControl: "max-age=300",
		})
		markup += fmt.Sprintf(`<esi:include src="%s"/>`, path)
		want += fmt.Sprintf("[%d]", i)
	}

	engine, err := assembler.New(assembler.Config{
		BaseURL:        origin.URL(),
		Cache:          cache.NewRedisStore(redisClient),
		MaxConcurrency: 10,
		Timeout:        10 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	ctx := context.Background()
	for pass := 0; pass < 2; pass++ {
		out, err := engine.Process(ctx, markup)
		if err != nil {
			t.Fatalf("Pass %d: Process failed: %v", pass, err)
		}
		if out != want {
			t.Fatalf("Pass %d: output mismatch", pass)
		}
	}

	if n := origin.TotalRequests(); n != 50 {
		t.Errorf("Second pass must be fully cached: got %d origin requests", n)
	}
}
