package participants

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Shugur-Network/dmsync/internal/constants"
	"github.com/Shugur-Network/dmsync/internal/domain"
	"github.com/Shugur-Network/dmsync/internal/logger"
	"github.com/Shugur-Network/dmsync/internal/models"
)

// maxConcurrentBatches bounds the relay-list requests in flight.
const maxConcurrentBatches = 4

// Directory resolves participants through a RelayListFetcher.
type Directory struct {
	fetcher domain.RelayListFetcher
	now     func() time.Time
}

// NewDirectory creates a directory backed by fetcher.
func NewDirectory(fetcher domain.RelayListFetcher) *Directory {
	return &Directory{fetcher: fetcher, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (d *Directory) WithClock(now func() time.Time) *Directory {
	d.now = now
	return d
}

// FetchLists fetches the relay lists of pubkeys in batches of batchSize.
// A failed batch is logged and its pubkeys are reported in failed.
func (d *Directory) FetchLists(ctx context.Context, discovery, pubkeys []string, batchSize int) (lists map[string]models.RelayLists, failed map[string]struct{}) {
	if batchSize <= 0 {
		batchSize = constants.ListBatchSize
	}
	log := logger.FromContext(ctx)

	var mu sync.Mutex
	lists = make(map[string]models.RelayLists, len(pubkeys))
	failed = make(map[string]struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentBatches)
	for start := 0; start < len(pubkeys); start += batchSize {
		batch := pubkeys[start:min(start+batchSize, len(pubkeys))]
		g.Go(func() error {
			got, err := d.fetcher.FetchRelayLists(gctx, discovery, batch)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn("relay list batch failed",
					zap.Int("batch_size", len(batch)),
					zap.Error(err))
				for _, pk := range batch {
					failed[pk] = struct{}{}
				}
				return nil
			}
			for pk, l := range got {
				lists[pk] = l
			}
			return nil
		})
	}
	_ = g.Wait()
	return lists, failed
}

// Resolve fetches and builds participants for pubkeys. Pubkeys whose lists
// could not be fetched fall back to the discovery relays.
func (d *Directory) Resolve(ctx context.Context, pubkeys, myBlocked []string, settings models.Settings) map[string]models.Participant {
	if len(pubkeys) == 0 {
		return map[string]models.Participant{}
	}
	lists, _ := d.FetchLists(ctx, settings.DiscoveryRelays, pubkeys, settings.ListBatchSize)
	return BuildMap(pubkeys, lists, myBlocked, settings.RelayMode, settings.DiscoveryRelays, d.now())
}

// RefreshStale re-resolves participants older than the relay TTL and merges
// them back. Participants whose fetch failed keep their previous record and
// stay stale. It returns the merged map and the refreshed pubkeys.
func (d *Directory) RefreshStale(ctx context.Context, current map[string]models.Participant, myBlocked []string, settings models.Settings) (map[string]models.Participant, []string) {
	stale := Stale(current, settings.RelayTTL, d.now())
	if len(stale) == 0 {
		return current, nil
	}
	logger.FromContext(ctx).Debug("refreshing stale participants", zap.Int("count", len(stale)))

	lists, failed := d.FetchLists(ctx, settings.DiscoveryRelays, stale, settings.ListBatchSize)
	refreshed := make([]string, 0, len(stale))
	for _, pk := range stale {
		if _, ok := failed[pk]; !ok {
			refreshed = append(refreshed, pk)
		}
	}
	incoming := BuildMap(refreshed, lists, myBlocked, settings.RelayMode, settings.DiscoveryRelays, d.now())
	return Merge(current, incoming), refreshed
}
