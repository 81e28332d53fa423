package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type mockRedisClient struct {
	PublishFunc func(ctx context.Context, channel string, payload interface{}) error
	IncrFunc    func(ctx context.Context, key string) (int64, error)
	ExpireFunc  func(ctx context.Context, key string, expiration time.Duration) error
}

var _ RedisClient = (*mockRedisClient)(nil)

func (m *mockRedisClient) Ping(context.Context) error { return nil }
func (m *mockRedisClient) Set(context.Context, string, interface{}, time.Duration) error {
	return nil
}
func (m *mockRedisClient) Get(context.Context, string) (string, error) { return "", nil }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) Del(context.Context, ...string) error { return nil }
func (m *mockRedisClient) Publish(ctx context.Context, channel string, payload interface{}) error {
	return m.PublishFunc(ctx, channel, payload)
}
func (m *mockRedisClient) Close() error { return nil }

func TestEventBusPublishesJSONOnPrefixedChannel(t *testing.T) {
	var gotChannel string
	var gotPayload interface{}
	mock := &mockRedisClient{
		PublishFunc: func(_ context.Context, channel string, payload interface{}) error {
			gotChannel = channel
			gotPayload = payload
			return nil
		},
	}
	bus := NewEventBus(mock, "ingest")

	payload := map[string]string{"jobId": "abc", "status": "queued"}
	if err := bus.Publish(context.Background(), "job.started", payload); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if gotChannel != "ingest:job.started" {
		t.Fatalf("channel = %q", gotChannel)
	}

	var decoded map[string]string
	if err := json.Unmarshal(gotPayload.([]byte), &decoded); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if decoded["jobId"] != "abc" {
		t.Fatalf("decoded payload = %v", decoded)
	}
}

func TestEventBusPropagatesPublishError(t *testing.T) {
	wantErr := errors.New("connection refused")
	mock := &mockRedisClient{
		PublishFunc: func(context.Context, string, interface{}) error { return wantErr },
	}
	bus := NewEventBus(mock, "")

	if err := bus.Publish(context.Background(), "job.completed", struct{}{}); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	counts := map[string]int64{}
	expired := map[string]bool{}
	mock := &mockRedisClient{
		IncrFunc: func(_ context.Context, key string) (int64, error) {
			counts[key]++
			return counts[key], nil
		},
		ExpireFunc: func(_ context.Context, key string, _ time.Duration) error {
			expired[key] = true
			return nil
		},
	}
	rl := NewRateLimiter(mock)
	key := ClientKey("10.0.0.1")

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(context.Background(), key, 3, time.Minute)
		if err != nil || !ok {
			t.Fatalf("request %d: ok=%t err=%v", i+1, ok, err)
		}
	}
	ok, err := rl.Allow(context.Background(), key, 3, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if ok {
		t.Fatal("fourth request in the window must be rejected")
	}
	if !expired[key] {
		t.Fatal("window TTL must be set on the first increment")
	}
}
