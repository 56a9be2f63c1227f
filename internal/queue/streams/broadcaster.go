package streams

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mohammad-safakhou/pharmaverse/session"
)

// Subscriber is one attached live-update connection.
type Subscriber interface {
	Send(ctx context.Context, ev Event) error
}

// Mirror receives a copy of every broadcast event (for example a Redis stream).
type Mirror interface {
	Mirror(ctx context.Context, ev Event) error
}

// SnapshotFunc loads the current session for a newly attached subscriber.
type SnapshotFunc func(ctx context.Context, sessionID string) (*session.Session, error)

type room struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]Subscriber
}

// Broadcaster fans events out to the subscribers attached to each session.
// Delivery within one session is sequential, so every subscriber sees events in
// the order they were broadcast. A subscriber whose delivery fails is detached.
type Broadcaster struct {
	mu          sync.Mutex
	rooms       map[string]*room
	snapshot    SnapshotFunc
	mirror      Mirror
	sendTimeout time.Duration
	logger      *log.Logger
	metrics     *hubMetrics
}

type Option func(*Broadcaster)

// WithMirror copies every event to m. Mirror failures are logged, never fatal.
func WithMirror(m Mirror) Option { return func(b *Broadcaster) { b.mirror = m } }

// WithSendTimeout bounds each delivery to one subscriber.
func WithSendTimeout(d time.Duration) Option {
	return func(b *Broadcaster) {
		if d > 0 {
			b.sendTimeout = d
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(b *Broadcaster) {
		if l != nil {
			b.logger = l
		}
	}
}

func NewBroadcaster(snapshot SnapshotFunc, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		rooms:       make(map[string]*room),
		snapshot:    snapshot,
		sendTimeout: 10 * time.Second,
		logger:      log.New(log.Writer(), "[BROADCAST] ", log.LstdFlags),
		metrics:     newHubMetrics(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broadcaster) room(sessionID string, create bool) *room {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.rooms[sessionID]
	if !ok && create {
		r = &room{subs: make(map[uint64]Subscriber)}
		b.rooms[sessionID] = r
	}
	return r
}

// Attach registers sub for sessionID. When the session exists its full snapshot is
// delivered before sub can receive any live event. The returned func detaches sub.
func (b *Broadcaster) Attach(ctx context.Context, sessionID string, sub Subscriber) (func(), error) {
	r := b.lockRoom(sessionID)
	defer r.mu.Unlock()

	if b.snapshot != nil {
		snap, err := b.snapshot(ctx, sessionID)
		switch {
		case err == nil:
			if err := b.deliver(ctx, sub, SessionData(snap)); err != nil {
				b.pruneIfEmpty(sessionID, r)
				return nil, fmt.Errorf("deliver snapshot: %w", err)
			}
		case errors.Is(err, session.ErrNotFound):
		default:
			b.pruneIfEmpty(sessionID, r)
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
	}

	id := r.nextID
	r.nextID++
	r.subs[id] = sub
	b.metrics.attached(ctx, 1)
	return func() { b.detach(sessionID, id) }, nil
}

// lockRoom returns the live room for sessionID with its lock held. A room pruned
// between lookup and lock is discarded and the lookup retried.
func (b *Broadcaster) lockRoom(sessionID string) *room {
	for {
		r := b.room(sessionID, true)
		r.mu.Lock()
		b.mu.Lock()
		current := b.rooms[sessionID] == r
		b.mu.Unlock()
		if current {
			return r
		}
		r.mu.Unlock()
	}
}

func (b *Broadcaster) detach(sessionID string, id uint64) {
	r := b.room(sessionID, false)
	if r == nil {
		return
	}
	r.mu.Lock()
	if _, ok := r.subs[id]; ok {
		delete(r.subs, id)
		b.metrics.attached(context.Background(), -1)
	}
	b.pruneIfEmpty(sessionID, r)
	r.mu.Unlock()
}

// pruneIfEmpty drops an empty room. Callers hold r.mu.
func (b *Broadcaster) pruneIfEmpty(sessionID string, r *room) {
	if len(r.subs) > 0 {
		return
	}
	b.mu.Lock()
	if b.rooms[sessionID] == r {
		delete(b.rooms, sessionID)
	}
	b.mu.Unlock()
}

// Broadcast delivers ev to every subscriber attached to sessionID.
func (b *Broadcaster) Broadcast(ctx context.Context, sessionID string, ev Event) {
	if ev.SessionID == "" {
		ev.SessionID = sessionID
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if b.mirror != nil {
		if err := b.mirror.Mirror(ctx, ev); err != nil {
			b.logger.Printf("mirror %s for %s: %v", ev.Type, sessionID, err)
		}
	}
	b.metrics.event(ctx, ev.Type)

	r := b.room(sessionID, false)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, sub := range r.subs {
		if err := b.deliver(ctx, sub, ev); err != nil {
			b.logger.Printf("dropping subscriber of %s after failed %s delivery: %v", sessionID, ev.Type, err)
			delete(r.subs, id)
			b.metrics.dropped(ctx, ev.Type)
			b.metrics.attached(ctx, -1)
		}
	}
	b.pruneIfEmpty(sessionID, r)
}

func (b *Broadcaster) deliver(ctx context.Context, sub Subscriber, ev Event) error {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.sendTimeout)
	defer cancel()
	return sub.Send(sendCtx, ev)
}

// Subscribers returns the number of subscribers attached to sessionID.
func (b *Broadcaster) Subscribers(sessionID string) int {
	r := b.room(sessionID, false)
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
