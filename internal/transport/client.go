// Package transport talks to relays over websockets with go-nostr.
package transport

import (
	"context"
	"fmt"
	"sort"
	"sync"

	nostr "github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"

	"github.com/Shugur-Network/dmsync/internal/limiter"
	"github.com/Shugur-Network/dmsync/internal/logger"
)

// Conn is the part of a relay connection the client needs.
type Conn interface {
	QuerySync(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error)
	Close() error
}

// Dialer opens a connection to a relay.
type Dialer func(ctx context.Context, url string) (Conn, error)

// DialRelay connects with go-nostr.
func DialRelay(ctx context.Context, url string) (Conn, error) {
	relay, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return nil, err
	}
	return relayConn{relay}, nil
}

type relayConn struct {
	relay *nostr.Relay
}

func (c relayConn) QuerySync(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	return c.relay.QuerySync(ctx, filter)
}

func (c relayConn) Close() error {
	return c.relay.Close()
}

// Client runs one-shot queries against relays. Each query opens its own
// connection, paced per relay.
type Client struct {
	dial  Dialer
	pacer *limiter.KeyedPacer
}

// NewClient creates a client. A nil dial uses DialRelay; a nil pacer disables pacing.
func NewClient(dial Dialer, pacer *limiter.KeyedPacer) *Client {
	if dial == nil {
		dial = DialRelay
	}
	if pacer == nil {
		pacer = limiter.NewKeyedPacer(0, 0)
	}
	return &Client{dial: dial, pacer: pacer}
}

// QueryRelay runs every filter against url and returns the matching events
// once each. truncated reports that a filter returned limit events or more.
func (c *Client) QueryRelay(ctx context.Context, url string, filters nostr.Filters, limit int) ([]nostr.Event, bool, error) {
	if err := c.pacer.Wait(ctx, url); err != nil {
		return nil, false, err
	}
	conn, err := c.dial(ctx, url)
	if err != nil {
		return nil, false, fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	var (
		out       []nostr.Event
		truncated bool
		seen      = make(map[string]struct{})
	)
	for _, filter := range filters {
		if limit > 0 {
			filter.Limit = limit
		}
		events, err := conn.QuerySync(ctx, filter)
		if err != nil {
			return out, truncated, fmt.Errorf("query: %w", err)
		}
		if limit > 0 && len(events) >= limit {
			truncated = true
		}
		for _, evt := range events {
			if evt == nil || !filter.Matches(evt) {
				continue
			}
			if _, dup := seen[evt.ID]; dup {
				continue
			}
			seen[evt.ID] = struct{}{}
			out = append(out, *evt)
		}
	}
	return out, truncated, nil
}

// QueryMany runs filters against every relay concurrently and returns the
// union of the answers. It fails only when no relay answered.
func (c *Client) QueryMany(ctx context.Context, urls []string, filters nostr.Filters, limit int) ([]nostr.Event, error) {
	type answer struct {
		events []nostr.Event
		err    error
	}
	answers := make([]answer, len(urls))

	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			events, _, err := c.QueryRelay(ctx, url, filters, limit)
			answers[i] = answer{events: events, err: err}
		}()
	}
	wg.Wait()

	var (
		out     []nostr.Event
		lastErr error
		ok      int
		seen    = make(map[string]struct{})
	)
	for i, a := range answers {
		if a.err != nil {
			logger.FromContext(ctx).Debug("relay query failed", zap.String("relay", urls[i]), zap.Error(a.err))
			lastErr = a.err
			continue
		}
		ok++
		for _, evt := range a.events {
			if _, dup := seen[evt.ID]; dup {
				continue
			}
			seen[evt.ID] = struct{}{}
			out = append(out, evt)
		}
	}
	if ok == 0 && len(urls) > 0 {
		return nil, fmt.Errorf("no relay answered: %w", lastErr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}
