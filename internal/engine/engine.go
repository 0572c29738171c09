// Package engine drives the cold and warm bootstrap of one identity's
// private-message state.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	nostr "github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Shugur-Network/dmsync/internal/conversations"
	"github.com/Shugur-Network/dmsync/internal/domain"
	"github.com/Shugur-Network/dmsync/internal/envelope"
	"github.com/Shugur-Network/dmsync/internal/errors"
	"github.com/Shugur-Network/dmsync/internal/logger"
	"github.com/Shugur-Network/dmsync/internal/metrics"
	"github.com/Shugur-Network/dmsync/internal/models"
	"github.com/Shugur-Network/dmsync/internal/participants"
	"github.com/Shugur-Network/dmsync/internal/relays"
	"github.com/Shugur-Network/dmsync/internal/workers"
)

// Mode is the start state of a bootstrap, decided once from the cache.
type Mode string

const (
	ModeCold Mode = "cold"
	ModeWarm Mode = "warm"
)

// Report describes one finished bootstrap.
type Report struct {
	RunID    string
	Mode     Mode
	Snapshot *models.Snapshot
	// OwnRelays were queried in the first round.
	OwnRelays []string
	// NewRelays were queried for full history in the second round.
	NewRelays       []string
	NewParticipants []string
	Refreshed       []string
	Unwrap          envelope.Stats
	NewMessages     int
	// AlreadyStored counts envelopes skipped because their message was cached.
	AlreadyStored int
	LimitReached  bool
	// Incomplete is set when no own relay answered. The previous sync time
	// is kept so the next run covers the gap.
	Incomplete bool
	// SaveErr is set when the snapshot could not be persisted.
	SaveErr  error
	Duration time.Duration
}

// Engine runs bootstraps. It is safe for concurrent use; concurrent calls
// for the same identity share a single run.
type Engine struct {
	cache     domain.SnapshotCache
	retriever *envelope.Retriever
	directory *participants.Directory
	pool      *workers.WorkerPool
	now       func() time.Time

	inflight singleflight.Group
}

// New creates an engine. pool may be nil to unwrap sequentially.
func New(cache domain.SnapshotCache, querier domain.RelayQuerier, fetcher domain.RelayListFetcher, pool *workers.WorkerPool) *Engine {
	return &Engine{
		cache:     cache,
		retriever: envelope.NewRetriever(querier),
		directory: participants.NewDirectory(fetcher),
		pool:      pool,
		now:       time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	e.directory.WithClock(now)
	return e
}

// Bootstrap synchronizes the private messages of pubkey and returns the
// resulting snapshot. Relay and decryption failures are absorbed; only
// invalid settings fail the call, before any I/O. The run itself is not
// bound to ctx: cancelling ctx stops the wait and returns ctx.Err(), while
// the run finishes under its per-relay timeouts.
func (e *Engine) Bootstrap(ctx context.Context, pubkey string, dec domain.Decrypter, settings models.Settings) (*models.Snapshot, error) {
	rep, err := e.BootstrapReport(ctx, pubkey, dec, settings)
	if err != nil {
		return nil, err
	}
	return rep.Snapshot, nil
}

// BootstrapReport is Bootstrap returning the run details too. Callers that
// joined a run in progress receive the same report.
func (e *Engine) BootstrapReport(ctx context.Context, pubkey string, dec domain.Decrypter, settings models.Settings) (*Report, error) {
	s := WithDefaults(settings)
	pk, err := ValidateRequest(pubkey, dec, s)
	if err != nil {
		return nil, err
	}

	runCtx := context.WithoutCancel(ctx)
	ch := e.inflight.DoChan(pk, func() (any, error) {
		return e.run(runCtx, pk, dec, s)
	})
	select {
	case res := <-ch:
		if res.Shared {
			metrics.CoalescedBootstraps.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Report), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) run(ctx context.Context, me string, dec domain.Decrypter, s models.Settings) (*Report, error) {
	started := e.now()
	rep := &Report{RunID: uuid.NewString()}
	ctx = logger.WithRun(ctx, rep.RunID, me)
	log := logger.FromContext(ctx)

	cached, ok := e.cache.Load(ctx, me)
	snap := models.NewSnapshot()
	rep.Mode = ModeCold
	if ok && isWarm(cached, s.CacheMaxAge, started) {
		snap = cached
		rep.Mode = ModeWarm
	}
	if rep.Mode == ModeCold && len(s.DiscoveryRelays) == 0 {
		return nil, errors.InvalidSettings("discovery relays", "are required without a usable cache")
	}
	log.Info("bootstrap started", zap.String("mode", string(rep.Mode)))

	// Own relay lists are fetched on every run.
	ownLists, failed := e.directory.FetchLists(ctx, s.DiscoveryRelays, []string{me}, s.ListBatchSize)
	var lists *models.RelayLists
	if l, found := ownLists[me]; found {
		lists = &l
	}
	self := participants.Build(me, lists, nil, s.RelayMode, s.DiscoveryRelays, e.now())
	if _, fetchFailed := failed[me]; fetchFailed && rep.Mode == ModeWarm {
		if prev, known := snap.Participants[me]; known {
			self = prev
		}
	}
	myBlocked := self.BlockedRelays
	rep.OwnRelays = self.DerivedRelays

	others := make(map[string]models.Participant, len(snap.Participants))
	for pk, p := range snap.Participants {
		if pk != me {
			others[pk] = p
		}
	}
	if rep.Mode == ModeWarm {
		others, rep.Refreshed = e.directory.RefreshStale(ctx, others, myBlocked, s)
	}

	var since *nostr.Timestamp
	alreadyQueried := rep.OwnRelays
	if rep.Mode == ModeWarm {
		since = watermark(*snap.SyncState.LastCacheTime, s.FuzzWindow)
		alreadyQueried = snap.SyncState.QueriedRelays
	}

	var dedup *envelope.Deduper
	if rep.Mode == ModeWarm {
		dedup = envelope.NewDeduper(snap.EnvelopeIDs(), snap.HasEnvelope)
	} else {
		dedup = envelope.NewDeduper(nil, nil)
	}
	unwrapper := envelope.NewUnwrapper(me, dec, e.pool)

	first := e.retriever.Fetch(ctx, rep.OwnRelays, envelope.BuildMessageFilters(me, since, s.QueryLimit), s.QueryLimit, s.QueryTimeout)
	recordHealth(snap, first.Outcomes)
	firstMsgs, firstStats := unwrapper.UnwrapAll(ctx, unseen(dedup, first.Envelopes))

	rep.NewParticipants = participants.NewPubkeys(counterparties(firstMsgs, me), others)
	resolved := e.directory.Resolve(ctx, rep.NewParticipants, myBlocked, s)
	others = participants.Merge(others, resolved)

	all := participants.Merge(others, map[string]models.Participant{me: self})
	rep.NewRelays = relays.FindNewRelays(all, alreadyQueried)

	second := e.retriever.Fetch(ctx, rep.NewRelays, envelope.BuildMessageFilters(me, nil, s.QueryLimit), s.QueryLimit, s.QueryTimeout)
	recordHealth(snap, second.Outcomes)
	secondMsgs, secondStats := unwrapper.UnwrapAll(ctx, unseen(dedup, second.Envelopes))

	// Counterparties first seen in the second round are resolved now; their
	// relays are queried by the next run.
	late := participants.NewPubkeys(counterparties(secondMsgs, me), all)
	if len(late) > 0 {
		all = participants.Merge(all, e.directory.Resolve(ctx, late, myBlocked, s))
		rep.NewParticipants = append(rep.NewParticipants, late...)
	}

	snap.Participants = all
	markBlocked(snap, myBlocked)

	rep.Unwrap = envelope.Stats{
		Total:     firstStats.Total + secondStats.Total,
		Unwrapped: firstStats.Unwrapped + secondStats.Unwrapped,
		Failed:    firstStats.Failed + secondStats.Failed,
	}
	rep.AlreadyStored = dedup.Stored()
	batch := append(firstMsgs, secondMsgs...)
	rep.NewMessages = conversations.Merge(snap, conversations.NormalizeAll(batch))

	roundsTruncated := first.LimitReached || second.LimitReached
	if rep.Mode == ModeWarm {
		snap.SyncState.QueryLimitReached = snap.SyncState.QueryLimitReached || roundsTruncated
	} else {
		snap.SyncState.QueryLimitReached = roundsTruncated
	}
	rep.LimitReached = snap.SyncState.QueryLimitReached
	rep.Incomplete = len(rep.OwnRelays) > 0 && len(first.Succeeded()) == 0
	if rep.Incomplete {
		snap.SyncState.AddQueried(second.Succeeded()...)
	} else {
		snap.SyncState.AddQueried(rep.OwnRelays...)
		snap.SyncState.AddQueried(rep.NewRelays...)
	}

	switch {
	case rep.Incomplete && rep.Mode == ModeWarm:
		// Keep the old watermark; what was fetched is still worth keeping.
		log.Warn("no own relay answered, sync time not advanced",
			zap.Int("own_relays", len(rep.OwnRelays)))
		if err := e.cache.Save(ctx, me, snap); err != nil {
			rep.SaveErr = err
			log.Error("snapshot not persisted", zap.Error(err))
		}
	case rep.Incomplete:
		log.Warn("no own relay answered, snapshot not persisted",
			zap.Int("own_relays", len(rep.OwnRelays)))
	default:
		savedAt := nostr.Timestamp(e.now().Unix())
		snap.SyncState.LastCacheTime = &savedAt
		if err := e.cache.Save(ctx, me, snap); err != nil {
			rep.SaveErr = err
			log.Error("snapshot not persisted", zap.Error(err))
		}
	}

	rep.Snapshot = snap
	rep.Duration = e.now().Sub(started)
	metrics.RecordBootstrap(string(rep.Mode), rep.Duration)
	metrics.SetSnapshotSize(len(snap.Conversations), snap.MessageCount())

	log.Info("bootstrap finished",
		zap.String("mode", string(rep.Mode)),
		zap.Int("own_relays", len(rep.OwnRelays)),
		zap.Int("new_relays", len(rep.NewRelays)),
		zap.Int("new_participants", len(rep.NewParticipants)),
		zap.Int("refreshed", len(rep.Refreshed)),
		zap.Int("envelopes", rep.Unwrap.Total),
		zap.Int("undecryptable", rep.Unwrap.Failed),
		zap.Int("new_messages", rep.NewMessages),
		zap.Int("already_stored", rep.AlreadyStored),
		zap.Bool("limit_reached", rep.LimitReached),
		zap.Bool("incomplete", rep.Incomplete),
		zap.Duration("took", rep.Duration))
	return rep, nil
}

// isWarm reports whether a cached snapshot can be resumed.
func isWarm(snap *models.Snapshot, maxAge time.Duration, now time.Time) bool {
	if snap == nil || snap.SyncState.LastCacheTime == nil {
		return false
	}
	return now.Sub(snap.SyncState.LastCacheTime.Time()) <= maxAge
}

// watermark pulls the last sync time back by the gift-wrap jitter window.
func watermark(last nostr.Timestamp, fuzz time.Duration) *nostr.Timestamp {
	since := last - nostr.Timestamp(fuzz/time.Second)
	if since < 0 {
		since = 0
	}
	return &since
}

func unseen(d *envelope.Deduper, events []nostr.Event) []nostr.Event {
	out := make([]nostr.Event, 0, len(events))
	for _, evt := range events {
		if !d.Seen(evt.ID) {
			out = append(out, evt)
		}
	}
	return out
}

// counterparties lists every participant of msgs other than me.
func counterparties(msgs []envelope.Unwrapped, me string) []string {
	var out []string
	for _, m := range msgs {
		for _, pk := range m.Participants {
			if pk != me {
				out = append(out, pk)
			}
		}
	}
	return out
}

func recordHealth(snap *models.Snapshot, outcomes map[string]error) {
	for url, err := range outcomes {
		info := snap.EndpointHealth[url]
		info.LastQuerySucceeded = err == nil
		info.LastQueryError = nil
		if err != nil {
			msg := err.Error()
			info.LastQueryError = &msg
		}
		snap.EndpointHealth[url] = info
	}
}

func markBlocked(snap *models.Snapshot, blocked []string) {
	set := make(map[string]struct{}, len(blocked))
	for _, url := range blocked {
		set[url] = struct{}{}
	}
	for url, info := range snap.EndpointHealth {
		_, info.IsBlocked = set[url]
		snap.EndpointHealth[url] = info
	}
	for url := range set {
		if _, ok := snap.EndpointHealth[url]; !ok {
			snap.EndpointHealth[url] = models.RelayInfo{IsBlocked: true}
		}
	}
}
