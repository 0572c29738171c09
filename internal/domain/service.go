package domain

import (
	"context"
	"time"

	"github.com/Shugur-Network/dmsync/internal/models"
)

// SnapshotProvider is the read side of the sync service used by the web layer.
type SnapshotProvider interface {
	// Snapshot returns the last persisted snapshot, or nil before the first sync.
	Snapshot() *models.Snapshot

	// Resync runs a new bootstrap and returns the fresh snapshot.
	Resync(ctx context.Context) (*models.Snapshot, error)

	// LastSync is the completion time of the latest bootstrap.
	LastSync() time.Time
}

// SyncNotifier is told about every completed bootstrap.
type SyncNotifier interface {
	NotifySynced(snap *models.Snapshot)
}
