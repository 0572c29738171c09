// Package application assembles the sync service from its components.
package application

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Shugur-Network/dmsync/internal/config"
	"github.com/Shugur-Network/dmsync/internal/domain"
	"github.com/Shugur-Network/dmsync/internal/engine"
	"github.com/Shugur-Network/dmsync/internal/health"
	"github.com/Shugur-Network/dmsync/internal/identity"
	"github.com/Shugur-Network/dmsync/internal/limiter"
	"github.com/Shugur-Network/dmsync/internal/logger"
	"github.com/Shugur-Network/dmsync/internal/models"
	"github.com/Shugur-Network/dmsync/internal/storage"
	"github.com/Shugur-Network/dmsync/internal/web"
	"github.com/Shugur-Network/dmsync/internal/workers"
)

// idleKeys is how long per-relay and per-client limiter state is kept.
const idleKeys = 10 * time.Minute

// Node ties together the components of the sync service for one identity.
type Node struct {
	ctx    context.Context
	cancel context.CancelFunc

	config     *config.Config
	keys       *identity.Keys
	pubkey     string
	cache      *storage.Cache
	WorkerPool *workers.WorkerPool
	pacer      *limiter.KeyedPacer
	engine     *engine.Engine

	mu        sync.RWMutex
	snapshot  *models.Snapshot
	report    *engine.Report
	lastSync  time.Time
	notifiers []domain.SyncNotifier

	server    *http.Server
	handler   *web.Handler
	hub       *web.Hub
	loopDone  chan struct{}
	startTime time.Time
}

var _ domain.SnapshotProvider = (*Node)(nil)

// New creates and configures a Node using the NodeBuilder pattern.
func New(ctx context.Context, cfg *config.Config) (*Node, error) {
	return build(NewNodeBuilder(ctx, cfg))
}

func build(builder *NodeBuilder) (*Node, error) {
	if err := builder.BuildIdentity(); err != nil {
		return nil, fmt.Errorf("failed loading identity: %w", err)
	}
	if err := builder.BuildCache(); err != nil {
		return nil, fmt.Errorf("failed building cache: %w", err)
	}
	builder.BuildWorkers()
	builder.BuildTransport()
	builder.BuildEngine()

	node, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build node: %w", err)
	}
	return node, nil
}

// Sync runs one bootstrap, publishes the snapshot and notifies listeners.
func (n *Node) Sync(ctx context.Context) (*engine.Report, error) {
	rep, err := n.engine.BootstrapReport(ctx, n.pubkey, n.keys, n.config.Sync.Settings())
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	n.snapshot = rep.Snapshot
	n.report = rep
	n.lastSync = time.Now()
	notifiers := append([]domain.SyncNotifier(nil), n.notifiers...)
	n.mu.Unlock()

	for _, notifier := range notifiers {
		notifier.NotifySynced(rep.Snapshot)
	}
	return rep, nil
}

// Resync implements domain.SnapshotProvider.
func (n *Node) Resync(ctx context.Context) (*models.Snapshot, error) {
	rep, err := n.Sync(ctx)
	if err != nil {
		return nil, err
	}
	return rep.Snapshot, nil
}

// Snapshot returns the snapshot of the latest sync, or nil before the first one.
func (n *Node) Snapshot() *models.Snapshot {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.snapshot
}

// LastSync returns the completion time of the latest sync.
func (n *Node) LastSync() time.Time {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.lastSync
}

// LastReport returns the details of the latest sync.
func (n *Node) LastReport() *engine.Report {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.report
}

// AddNotifier registers a listener for completed syncs.
func (n *Node) AddNotifier(notifier domain.SyncNotifier) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifiers = append(n.notifiers, notifier)
}

// Start serves the HTTP API and keeps the snapshot fresh until ctx ends.
// Until the first sync succeeds the API serves the cached snapshot, if any.
func (n *Node) Start(ctx context.Context) error {
	if cached, ok := n.cache.Load(ctx, n.pubkey); ok {
		n.mu.Lock()
		n.snapshot = cached
		if cached.SyncState.LastCacheTime != nil {
			n.lastSync = cached.SyncState.LastCacheTime.Time()
		}
		n.mu.Unlock()
	}

	n.hub = web.NewHub(logger.New("web"))
	n.AddNotifier(n.hub)

	checker := health.NewHealthChecker(n, n.hub, logger.New("health"), config.Version, 3*n.resyncInterval())
	n.handler = web.NewHandler(n, checker, n.hub, n.config.Server, n.config.Metrics, logger.New("web"))
	n.server = &http.Server{
		Addr:         n.config.Server.Addr,
		Handler:      n.handler.Routes(),
		ReadTimeout:  n.config.Server.ReadTimeout,
		WriteTimeout: n.config.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP API listening", zap.String("addr", n.config.Server.Addr))
		if err := n.server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", zap.Error(err))
		}
	}()

	n.loopDone = make(chan struct{})
	go n.resyncLoop(ctx)
	return nil
}

func (n *Node) resyncInterval() time.Duration {
	if d := n.config.Sync.ResyncInterval; d > 0 {
		return d
	}
	return 5 * time.Minute
}

// resyncLoop runs a sync immediately and then on every tick.
func (n *Node) resyncLoop(ctx context.Context) {
	defer close(n.loopDone)
	n.syncAndLog(ctx)

	ticker := time.NewTicker(n.resyncInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.syncAndLog(ctx)
			n.pacer.Cleanup(idleKeys)
			n.handler.Cleanup(idleKeys)
		}
	}
}

func (n *Node) syncAndLog(ctx context.Context) {
	rep, err := n.Sync(ctx)
	if err != nil {
		logger.Error("Sync failed", zap.Error(err))
		return
	}
	if rep.SaveErr != nil {
		logger.Warn("Sync finished but the snapshot was not persisted", zap.Error(rep.SaveErr))
	}
	if rep.Incomplete {
		logger.Warn("Sync incomplete; none of the own relays answered", zap.Strings("own_relays", rep.OwnRelays))
	}
}

// Shutdown stops the HTTP server, waits for unwrap jobs and closes the cache.
func (n *Node) Shutdown() {
	logger.Info("Initiating graceful shutdown...")
	timeout := n.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var shutdownErrors []error

	if n.server != nil {
		if err := n.server.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server: %w", err))
		}
	}
	if n.hub != nil {
		n.hub.Close()
	}
	if n.loopDone != nil {
		select {
		case <-n.loopDone:
		case <-shutdownCtx.Done():
			shutdownErrors = append(shutdownErrors, fmt.Errorf("resync loop did not stop within %v", timeout))
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		n.WorkerPool.Stop()
	}()
	select {
	case <-done:
		logger.Debug("Worker pool finished")
	case <-shutdownCtx.Done():
		shutdownErrors = append(shutdownErrors, fmt.Errorf("worker pool shutdown timed out after %v", timeout))
	}

	if n.cancel != nil {
		n.cancel()
	}

	if err := n.cache.Close(); err != nil {
		shutdownErrors = append(shutdownErrors, fmt.Errorf("cache: %w", err))
	}

	if len(shutdownErrors) > 0 {
		logger.Warn("Node shutdown completed with errors",
			zap.Int("error_count", len(shutdownErrors)),
			zap.Errors("errors", shutdownErrors))
		return
	}
	logger.Info("Node shutdown completed successfully")
}
