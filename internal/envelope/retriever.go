package envelope

import (
	"context"
	"sort"
	"sync"
	"time"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/willf/bloom"
	"go.uber.org/zap"

	"github.com/Shugur-Network/dmsync/internal/domain"
	"github.com/Shugur-Network/dmsync/internal/errors"
	"github.com/Shugur-Network/dmsync/internal/logger"
	"github.com/Shugur-Network/dmsync/internal/metrics"
)

// Deduper decides which envelopes are worth decrypting. It drops ids
// already handled in this run and ids whose message is already stored. The
// bloom filter holds the stored envelope ids so the costly stored lookup only
// runs for likely hits.
type Deduper struct {
	stored  *bloom.BloomFilter
	isKnown func(id string) bool
	seen    map[string]struct{}
	skipped int
}

// NewDeduper creates a deduper over the stored envelope ids. isKnown confirms
// a filter hit; it may be nil when nothing is stored.
func NewDeduper(stored []string, isKnown func(id string) bool) *Deduper {
	d := &Deduper{isKnown: isKnown, seen: make(map[string]struct{})}
	if len(stored) > 0 && isKnown != nil {
		d.stored = bloom.NewWithEstimates(uint(max(len(stored), 1024)), 0.01)
		for _, id := range stored {
			d.stored.AddString(id)
		}
	}
	return d
}

// Seen records id and reports whether it needs no decryption.
func (d *Deduper) Seen(id string) bool {
	if _, ok := d.seen[id]; ok {
		return true
	}
	d.seen[id] = struct{}{}
	if d.stored != nil && d.stored.TestString(id) && d.isKnown(id) {
		d.skipped++
		return true
	}
	return false
}

// Len returns the number of distinct ids recorded.
func (d *Deduper) Len() int { return len(d.seen) }

// Stored returns how many ids were dropped because their message is stored.
func (d *Deduper) Stored() int { return d.skipped }

// Round is the result of one fan-out over a relay set.
type Round struct {
	// Envelopes holds each distinct envelope once, ordered by relay then by
	// the relay's own order.
	Envelopes []nostr.Event
	// LimitReached is true when any relay answered at the query limit.
	LimitReached bool
	// Outcomes holds nil for every relay that answered and the error otherwise.
	Outcomes map[string]error
}

// Succeeded returns the relays that answered.
func (r Round) Succeeded() []string {
	out := make([]string, 0, len(r.Outcomes))
	for url, err := range r.Outcomes {
		if err == nil {
			out = append(out, url)
		}
	}
	sort.Strings(out)
	return out
}

// Retriever fans a query out to many relays.
type Retriever struct {
	querier domain.RelayQuerier
}

// NewRetriever creates a retriever over querier.
func NewRetriever(querier domain.RelayQuerier) *Retriever {
	return &Retriever{querier: querier}
}

type relayResult struct {
	events    []nostr.Event
	truncated bool
	err       error
}

// Fetch queries every relay concurrently, each bounded by timeout, and waits
// for all of them to settle. A failing relay never cancels its siblings.
func (r *Retriever) Fetch(ctx context.Context, relays []string, filters nostr.Filters, limit int, timeout time.Duration) Round {
	round := Round{Outcomes: make(map[string]error, len(relays))}
	if len(relays) == 0 {
		return round
	}
	log := logger.FromContext(ctx)

	results := make([]relayResult, len(relays))
	var wg sync.WaitGroup
	for i, url := range relays {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			qctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			events, truncated, err := r.querier.QueryRelay(qctx, url, filters, limit)
			if err != nil {
				err = errors.RelayQueryError(url, err)
			}
			results[i] = relayResult{events: events, truncated: truncated, err: err}
			metrics.RecordRelayQuery(err)
		}(i, url)
	}
	wg.Wait()

	seen := make(map[string]struct{})
	duplicates := 0

	for i, url := range relays {
		res := results[i]
		round.Outcomes[url] = res.err
		if res.err != nil {
			log.Debug("relay query failed", zap.String("relay", url), zap.Error(res.err))
			continue
		}
		if res.truncated {
			round.LimitReached = true
		}
		for _, evt := range res.events {
			if evt.ID == "" {
				continue
			}
			if _, dup := seen[evt.ID]; dup {
				duplicates++
				continue
			}
			seen[evt.ID] = struct{}{}
			round.Envelopes = append(round.Envelopes, evt)
		}
	}

	metrics.EnvelopesFetched.Add(float64(len(round.Envelopes)))
	metrics.DuplicateEnvelopes.Add(float64(duplicates))
	if round.LimitReached {
		metrics.QueryLimitReached.Inc()
	}
	log.Debug("retrieval round settled",
		zap.Int("relays", len(relays)),
		zap.Int("envelopes", len(round.Envelopes)),
		zap.Int("duplicates", duplicates),
		zap.Bool("limit_reached", round.LimitReached))
	return round
}
