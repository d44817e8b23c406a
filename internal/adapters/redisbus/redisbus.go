// Package redisbus mirrors committed conference events to Redis pub/sub so
// other processes can follow a conference without joining it.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// Bus publishes each event on conference:<id>:events and keeps the last
// published sequence number under conference:<id>:seq.
type Bus struct {
	client *redis.Client
	seqTTL time.Duration
}

var (
	_ core.EventSink = (*Bus)(nil)
	_ core.EventFeed = (*Bus)(nil)
)

// Open connects to the Redis server at url and checks it is reachable.
func Open(ctx context.Context, url string) (*Bus, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(pctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return New(c), nil
}

func New(client *redis.Client) *Bus {
	return &Bus{client: client, seqTTL: 24 * time.Hour}
}

func Channel(id domain.ConferenceID) string { return "conference:" + string(id) + ":events" }

func seqKey(id domain.ConferenceID) string { return "conference:" + string(id) + ":seq" }

func (b *Bus) Publish(ctx context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: encode event: %w", err)
	}
	pipe := b.client.TxPipeline()
	pipe.Publish(ctx, Channel(ev.ConferenceID), data)
	pipe.Set(ctx, seqKey(ev.ConferenceID), ev.Seq, b.seqTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish %s: %w", ev.Type, err)
	}
	return nil
}

// LastSeq returns the last mirrored sequence number, or 0 when none.
func (b *Bus) LastSeq(ctx context.Context, id domain.ConferenceID) (uint64, error) {
	n, err := b.client.Get(ctx, seqKey(id)).Uint64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// Follow streams one conference's mirrored events until ctx is done.
func (b *Bus) Follow(ctx context.Context, id domain.ConferenceID) (<-chan json.RawMessage, error) {
	ps := b.client.Subscribe(ctx, Channel(id))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis: subscribe: %w", err)
	}
	out := make(chan json.RawMessage)
	go func() {
		defer close(out)
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- json.RawMessage(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *Bus) Close() error {
	return b.client.Close()
}
