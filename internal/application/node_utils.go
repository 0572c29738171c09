package application

import (
	"context"

	"github.com/Shugur-Network/dmsync/internal/config"
	"github.com/Shugur-Network/dmsync/internal/models"
)

// Config returns the node's configuration.
func (n *Node) Config() *config.Config {
	return n.config
}

// Pubkey returns the hex public key being synchronized.
func (n *Node) Pubkey() string {
	return n.pubkey
}

// CachedSnapshot reads the persisted snapshot without touching the network.
func (n *Node) CachedSnapshot(ctx context.Context) (*models.Snapshot, bool) {
	return n.cache.Load(ctx, n.pubkey)
}

// ForgetCache removes the persisted snapshot so the next sync starts cold.
func (n *Node) ForgetCache(ctx context.Context) error {
	return n.cache.Forget(ctx, n.pubkey)
}
