package streams

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/mohammad-safakhou/pharmaverse/session"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestEnvelopeValidation(t *testing.T) {
	env := Envelope{EventID: "e1", EventType: string(EventPong), SessionID: "s1"}
	if _, err := env.Marshal(); err == nil {
		t.Fatalf("expected error for missing data")
	}
	env.Data = json.RawMessage(`{"message":"Connection active"}`)
	raw, err := env.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if env.OccurredAt.IsZero() {
		t.Fatalf("expected occurred_at to be defaulted")
	}
	back, err := UnmarshalEnvelope(raw)
	if err != nil || back.EventID != "e1" {
		t.Fatalf("unexpected envelope %+v (%v)", back, err)
	}
	if _, err := UnmarshalEnvelope([]byte(`{"event_id":"x"}`)); err == nil {
		t.Fatalf("expected validation error")
	}
}

func startRedis(t *testing.T, ctx context.Context) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container in short mode")
	}
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })
	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := c.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPublisherMirrorsThroughBroadcaster(t *testing.T) {
	ctx := context.Background()
	pub := NewPublisher(startRedis(t, ctx), "test:events:", 100)

	s := session.New(session.Subject{Molecule: "Metformin"})
	hub := NewBroadcaster(func(context.Context, string) (*session.Session, error) { return s, nil }, WithMirror(pub))
	hub.Broadcast(ctx, s.ID, ChatMessage(s.ID, "master", "Planning"))
	hub.Broadcast(ctx, s.ID, AgentStatus(s.ID, "IQVIA Insights Agent", AgentRunning, "Analyzing market data"))

	envs, err := pub.History(ctx, s.ID, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(envs) != 2 {
		t.Fatalf("expected 2 mirrored events, got %d", len(envs))
	}
	if envs[0].EventType != string(EventChatMessage) || envs[1].EventType != string(EventAgentStatus) {
		t.Fatalf("unexpected order %s, %s", envs[0].EventType, envs[1].EventType)
	}
	var chat ChatPayload
	if err := json.Unmarshal(envs[0].Data, &chat); err != nil || chat.Message != "Planning" {
		t.Fatalf("unexpected payload %s (%v)", envs[0].Data, err)
	}
	limited, err := pub.History(ctx, s.ID, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected 1 event with count, got %d (%v)", len(limited), err)
	}
}
