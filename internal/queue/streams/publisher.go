package streams

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Publisher mirrors session events into one Redis stream per session, giving
// operators a replayable log of every run.
type Publisher struct {
	client *redis.Client
	prefix string
	maxLen int64
}

func NewPublisher(client *redis.Client, prefix string, maxLen int64) *Publisher {
	if prefix == "" {
		prefix = "pharmaverse:events:"
	}
	return &Publisher{client: client, prefix: prefix, maxLen: maxLen}
}

// Stream returns the stream key for a session.
func (p *Publisher) Stream(sessionID string) string { return p.prefix + sessionID }

// Mirror appends ev to the session's stream.
func (p *Publisher) Mirror(ctx context.Context, ev Event) error {
	_, err := p.Publish(ctx, ev)
	return err
}

func (p *Publisher) Publish(ctx context.Context, ev Event) (string, error) {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	env := Envelope{
		EventID:    uuid.NewString(),
		EventType:  string(ev.Type),
		SessionID:  ev.SessionID,
		OccurredAt: ev.Timestamp,
		Data:       data,
	}
	raw, err := env.Marshal()
	if err != nil {
		return "", err
	}
	args := &redis.XAddArgs{
		Stream: p.Stream(ev.SessionID),
		Values: map[string]interface{}{"envelope": raw},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return id, nil
}

// History reads back the mirrored envelopes of a session, oldest first.
func (p *Publisher) History(ctx context.Context, sessionID string, count int64) ([]Envelope, error) {
	var (
		msgs []redis.XMessage
		err  error
	)
	if count > 0 {
		msgs, err = p.client.XRangeN(ctx, p.Stream(sessionID), "-", "+", count).Result()
	} else {
		msgs, err = p.client.XRange(ctx, p.Stream(sessionID), "-", "+").Result()
	}
	if err != nil {
		return nil, fmt.Errorf("xrange: %w", err)
	}
	out := make([]Envelope, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values["envelope"].(string)
		if !ok {
			continue
		}
		env, err := UnmarshalEnvelope([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}
