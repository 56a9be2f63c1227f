package streams

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mohammad-safakhou/pharmaverse/session"
)

type recordingSub struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (r *recordingSub) Send(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("connection closed")
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSub) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type recordingMirror struct {
	events []Event
	err    error
}

func (m *recordingMirror) Mirror(_ context.Context, ev Event) error {
	m.events = append(m.events, ev)
	return m.err
}

func snapshotOf(sessions map[string]*session.Session) SnapshotFunc {
	return func(_ context.Context, id string) (*session.Session, error) {
		s, ok := sessions[id]
		if !ok {
			return nil, session.ErrNotFound
		}
		return s.Clone(), nil
	}
}

func TestAttachDeliversSnapshotFirst(t *testing.T) {
	s := session.New(session.Subject{Molecule: "metformin"})
	s.PutResult(session.WorkerResult{WorkerID: "market", Summary: "done"})
	b := NewBroadcaster(snapshotOf(map[string]*session.Session{s.ID: s}))

	sub := &recordingSub{}
	detach, err := b.Attach(context.Background(), s.ID, sub)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer detach()
	b.Broadcast(context.Background(), s.ID, AgentStatus(s.ID, "trade", AgentRunning, "🌍 Analyzing trade data..."))
	b.Broadcast(context.Background(), s.ID, ChatMessage(s.ID, "trade", "hello"))

	got := sub.types()
	want := []EventType{EventSessionData, EventAgentStatus, EventChatMessage}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	snap := sub.events[0].Payload.(SessionPayload).Session
	if _, ok := snap.WorkerResults["market"]; !ok {
		t.Fatalf("snapshot missing collected results")
	}
}

func TestAttachUnknownSessionSkipsSnapshot(t *testing.T) {
	b := NewBroadcaster(snapshotOf(nil))
	sub := &recordingSub{}
	if _, err := b.Attach(context.Background(), "later", sub); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if len(sub.types()) != 0 {
		t.Fatalf("expected no snapshot for unknown session")
	}
	if b.Subscribers("later") != 1 {
		t.Fatalf("expected subscriber to be attached")
	}
}

func TestFailedDeliveryDropsOnlyThatSubscriber(t *testing.T) {
	b := NewBroadcaster(nil)
	ctx := context.Background()
	good := &recordingSub{}
	bad := &recordingSub{}
	other := &recordingSub{}
	_, _ = b.Attach(ctx, "s1", good)
	_, _ = b.Attach(ctx, "s1", bad)
	_, _ = b.Attach(ctx, "s1", other)

	bad.fail = true
	b.Broadcast(ctx, "s1", ChatMessage("s1", "master", "first"))
	if b.Subscribers("s1") != 2 {
		t.Fatalf("expected 2 subscribers after drop, got %d", b.Subscribers("s1"))
	}
	b.Broadcast(ctx, "s1", ChatMessage("s1", "master", "second"))
	if len(good.types()) != 2 || len(other.types()) != 2 {
		t.Fatalf("healthy subscribers missed events: %v %v", good.types(), other.types())
	}
}

func TestDetachAndIsolationBetweenSessions(t *testing.T) {
	b := NewBroadcaster(nil)
	ctx := context.Background()
	a := &recordingSub{}
	c := &recordingSub{}
	detachA, _ := b.Attach(ctx, "a", a)
	_, _ = b.Attach(ctx, "c", c)

	b.Broadcast(ctx, "a", ChatMessage("a", "master", "for a"))
	if len(c.types()) != 0 {
		t.Fatalf("event leaked across sessions")
	}
	detachA()
	detachA()
	if b.Subscribers("a") != 0 {
		t.Fatalf("expected a to be detached")
	}
	b.Broadcast(ctx, "a", ChatMessage("a", "master", "nobody listening"))
	if len(a.types()) != 1 {
		t.Fatalf("detached subscriber still received events")
	}
}

func TestBroadcastMirrorsEvenWithoutSubscribers(t *testing.T) {
	m := &recordingMirror{err: errors.New("redis down")}
	b := NewBroadcaster(nil, WithMirror(m))
	b.Broadcast(context.Background(), "s1", Pong("s1"))
	if len(m.events) != 1 || m.events[0].SessionID != "s1" {
		t.Fatalf("expected mirrored event, got %+v", m.events)
	}
}

func TestConcurrentAttachAndBroadcast(t *testing.T) {
	b := NewBroadcaster(nil)
	ctx := context.Background()
	var wg sync.WaitGroup
	subs := make([]*recordingSub, 20)
	for i := range subs {
		subs[i] = &recordingSub{}
		wg.Add(1)
		go func(sub *recordingSub) {
			defer wg.Done()
			detach, err := b.Attach(ctx, "busy", sub)
			if err != nil {
				t.Errorf("attach: %v", err)
				return
			}
			b.Broadcast(ctx, "busy", Pong("busy"))
			detach()
		}(subs[i])
	}
	wg.Wait()
	if b.Subscribers("busy") != 0 {
		t.Fatalf("expected every subscriber detached")
	}
}
