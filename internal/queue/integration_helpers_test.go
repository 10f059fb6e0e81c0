//go:build integration

package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startContainer starts req and returns host:port of its first exposed port.
func startContainer(t *testing.T, req testcontainers.ContainerRequest) string {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start %s container: %v", req.Image, err)
	}
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("terminate %s container: %v", req.Image, err)
		}
	})

	endpoint, err := c.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("container endpoint: %v", err)
	}
	return endpoint
}

func redisContainerRequest() testcontainers.ContainerRequest {
	return testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}
}

func postgresContainerRequest() testcontainers.ContainerRequest {
	return testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
}

// exerciseService runs the queue contract every backend has to honor.
func exerciseService(t *testing.T, svc Service) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing queue", func(t *testing.T) {
		q := svc.Queue("absent")
		ok, err := q.Exists(ctx)
		if err != nil || ok {
			t.Fatalf("Exists = %v, %v; want false", ok, err)
		}
		if _, err := q.Send(ctx, "x", SendOptions{}); !errors.Is(err, ErrQueueNotFound) {
			t.Errorf("Send error = %v, want ErrQueueNotFound", err)
		}
	})

	t.Run("arrival order and delete", func(t *testing.T) {
		q := svc.Queue("order")
		if err := q.CreateIfNotExists(ctx); err != nil {
			t.Fatalf("CreateIfNotExists: %v", err)
		}
		if err := q.CreateIfNotExists(ctx); err != nil {
			t.Fatalf("second CreateIfNotExists: %v", err)
		}
		for _, c := range []string{"a", "b", "c"} {
			if _, err := q.Send(ctx, c, SendOptions{}); err != nil {
				t.Fatalf("Send %s: %v", c, err)
			}
		}
		if n, err := q.ApproximateCount(ctx); err != nil || n != 3 {
			t.Fatalf("count = %d, %v; want 3", n, err)
		}

		msgs, err := q.ReceiveMany(ctx, 10, time.Minute)
		if err != nil {
			t.Fatalf("ReceiveMany: %v", err)
		}
		if len(msgs) != 3 {
			t.Fatalf("received %d, want 3", len(msgs))
		}
		for i, want := range []string{"a", "b", "c"} {
			if msgs[i].Content != want {
				t.Errorf("msgs[%d] = %q, want %q", i, msgs[i].Content, want)
			}
			if msgs[i].DequeueCount != 1 {
				t.Errorf("msgs[%d].DequeueCount = %d, want 1", i, msgs[i].DequeueCount)
			}
		}

		// Everything is in flight.
		if m, err := q.ReceiveOne(ctx, time.Minute); err != nil || m != nil {
			t.Fatalf("ReceiveOne while in flight = %v, %v", m, err)
		}

		for _, m := range msgs {
			if err := m.Delete(ctx); err != nil {
				t.Fatalf("Delete %s: %v", m.ID, err)
			}
		}
		if n, _ := q.ApproximateCount(ctx); n != 0 {
			t.Errorf("count after delete = %d, want 0", n)
		}
	})

	t.Run("visibility timeout", func(t *testing.T) {
		q := svc.Queue("visibility")
		_ = q.CreateIfNotExists(ctx)
		if _, err := q.Send(ctx, "retry", SendOptions{}); err != nil {
			t.Fatalf("Send: %v", err)
		}

		first, err := q.ReceiveOne(ctx, time.Second)
		if err != nil || first == nil {
			t.Fatalf("ReceiveOne = %v, %v", first, err)
		}
		time.Sleep(1500 * time.Millisecond)

		second, err := q.ReceiveOne(ctx, time.Minute)
		if err != nil || second == nil {
			t.Fatalf("redelivery = %v, %v", second, err)
		}
		if second.DequeueCount != 2 {
			t.Errorf("DequeueCount = %d, want 2", second.DequeueCount)
		}
		if err := first.Delete(ctx); err == nil {
			t.Error("Delete with stale receipt succeeded")
		}
		if err := second.Delete(ctx); err != nil {
			t.Errorf("Delete: %v", err)
		}
	})

	t.Run("delay", func(t *testing.T) {
		q := svc.Queue("delay")
		_ = q.CreateIfNotExists(ctx)
		if _, err := q.Send(ctx, "later", SendOptions{Delay: time.Second}); err != nil {
			t.Fatalf("Send: %v", err)
		}
		if m, _ := q.ReceiveOne(ctx, time.Minute); m != nil {
			t.Fatal("delayed message visible early")
		}
		time.Sleep(1500 * time.Millisecond)
		m, err := q.ReceiveOne(ctx, time.Minute)
		if err != nil || m == nil {
			t.Fatalf("ReceiveOne after delay = %v, %v", m, err)
		}
		_ = m.Delete(ctx)
	})

	t.Run("clear", func(t *testing.T) {
		q := svc.Queue("clear")
		_ = q.CreateIfNotExists(ctx)
		for i := 0; i < 5; i++ {
			_, _ = q.Send(ctx, "x", SendOptions{})
		}
		if err := q.Clear(ctx); err != nil {
			t.Fatalf("Clear: %v", err)
		}
		if n, _ := q.ApproximateCount(ctx); n != 0 {
			t.Errorf("count after clear = %d, want 0", n)
		}
		if ok, _ := q.Exists(ctx); !ok {
			t.Error("queue removed by Clear")
		}
	})

	t.Run("dispatcher priority order", func(t *testing.T) {
		cfg := fastConfig()
		cfg.QueueName = "integration"
		d := New(svc, cfg, nopLogger())
		defer stopDispatcher(t, d)

		sends := []struct {
			content string
			p       Priority
		}{
			{"low-1", PriorityLow},
			{"default-1", PriorityDefault},
			{"high-1", PriorityHigh},
			{"high-2", PriorityHigh},
		}
		for _, s := range sends {
			if _, err := d.Enqueue(ctx, s.content, WithPriority(s.p)); err != nil {
				t.Fatalf("Enqueue %s: %v", s.content, err)
			}
		}

		var mu sync.Mutex
		var got []string
		_ = d.OnItem(func(ctx context.Context, msg *Message) error {
			mu.Lock()
			got = append(got, msg.Content)
			mu.Unlock()
			return msg.Delete(ctx)
		})

		if !waitFor(t, 10*time.Second, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(got) == len(sends)
		}) {
			t.Fatal("not all messages delivered")
		}

		want := []string{"high-1", "high-2", "default-1", "low-1"}
		mu.Lock()
		defer mu.Unlock()
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("delivery order = %v, want %v", got, want)
			}
		}
	})
}
