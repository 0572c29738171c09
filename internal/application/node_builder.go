package application

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Shugur-Network/dmsync/internal/config"
	"github.com/Shugur-Network/dmsync/internal/engine"
	"github.com/Shugur-Network/dmsync/internal/identity"
	"github.com/Shugur-Network/dmsync/internal/limiter"
	"github.com/Shugur-Network/dmsync/internal/logger"
	"github.com/Shugur-Network/dmsync/internal/storage"
	"github.com/Shugur-Network/dmsync/internal/transport"
	"github.com/Shugur-Network/dmsync/internal/workers"
)

// unwrapQueueFactor sizes the unwrap job buffer relative to the worker count.
const unwrapQueueFactor = 64

// NodeBuilder is used to incrementally construct a Node instance.
type NodeBuilder struct {
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config

	keys       *identity.Keys
	pubkey     string
	cache      *storage.Cache
	workerPool *workers.WorkerPool
	pacer      *limiter.KeyedPacer
	client     *transport.Client
	dial       transport.Dialer
	engine     *engine.Engine
}

// NewNodeBuilder creates a new NodeBuilder with its own cancelable context.
func NewNodeBuilder(ctx context.Context, cfg *config.Config) *NodeBuilder {
	c, cancel := context.WithCancel(ctx)
	return &NodeBuilder{
		ctx:    c,
		cancel: cancel,
		config: cfg,
	}
}

// WithDialer replaces the relay dialer. Used by tests.
func (b *NodeBuilder) WithDialer(dial transport.Dialer) *NodeBuilder {
	b.dial = dial
	return b
}

// BuildIdentity loads the key pair. A configured public key must match the
// secret key.
func (b *NodeBuilder) BuildIdentity() error {
	secret, err := identity.LoadSecretKey(b.config.Identity.SecretKey, b.config.Identity.SecretKeyFile)
	if err != nil {
		return fmt.Errorf("a secret key is required to decrypt messages: %w", err)
	}
	keys, err := identity.NewKeys(secret)
	if err != nil {
		return err
	}
	if pk := b.config.Identity.PublicKey; pk != "" {
		parsed, err := identity.ParsePubkey(pk)
		if err != nil {
			return err
		}
		if parsed != keys.PublicKey() {
			return fmt.Errorf("configured public key does not belong to the secret key")
		}
	}
	b.keys = keys
	b.pubkey = keys.PublicKey()
	logger.Info("Identity loaded", zap.String("npub", keys.Npub()))
	return nil
}

// BuildCache opens the configured snapshot store.
func (b *NodeBuilder) BuildCache() error {
	cache, err := storage.Open(b.ctx, b.config.Cache)
	if err != nil {
		b.cancel()
		return err
	}
	b.cache = cache
	return nil
}

// BuildWorkers initializes the unwrap worker pool.
func (b *NodeBuilder) BuildWorkers() {
	n := b.config.Sync.UnwrapWorkers
	if n <= 0 {
		n = 1
	}
	b.workerPool = workers.NewWorkerPool(n, n*unwrapQueueFactor)
}

// BuildTransport sets up the paced relay client.
func (b *NodeBuilder) BuildTransport() {
	b.pacer = limiter.NewKeyedPacer(b.config.Sync.RelayRate, b.config.Sync.RelayBurst)
	b.client = transport.NewClient(b.dial, b.pacer)
}

// BuildEngine wires the bootstrap engine to the cache and transport.
func (b *NodeBuilder) BuildEngine() {
	b.engine = engine.New(b.cache, b.client, transport.NewListFetcher(b.client), b.workerPool)
}

// Build finalizes the node construction.
func (b *NodeBuilder) Build() (*Node, error) {
	if b.keys == nil {
		return nil, fmt.Errorf("identity must be built before calling Build()")
	}
	if b.cache == nil {
		return nil, fmt.Errorf("cache must be built before calling Build()")
	}
	if b.workerPool == nil {
		return nil, fmt.Errorf("worker pool must be built before calling Build()")
	}
	if b.client == nil {
		return nil, fmt.Errorf("transport must be built before calling Build()")
	}
	if b.engine == nil {
		return nil, fmt.Errorf("engine must be built before calling Build()")
	}

	node := &Node{
		ctx:        b.ctx,
		cancel:     b.cancel,
		config:     b.config,
		keys:       b.keys,
		pubkey:     b.pubkey,
		cache:      b.cache,
		WorkerPool: b.workerPool,
		pacer:      b.pacer,
		engine:     b.engine,
		startTime:  time.Now(),
	}
	logger.Debug("Node initialized successfully via builder")
	return node, nil
}
