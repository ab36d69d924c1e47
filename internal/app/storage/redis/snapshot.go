// Package redis mirrors round snapshots into Redis for polling clients.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/raffle_engine/internal/app/domain/round"
	"github.com/R3E-Network/raffle_engine/internal/app/storage"
)

const (
	currentKey = "raffle:round:current"
	roundKeyFm = "raffle:round:%d"

	// Snapshots of terminal rounds age out; the store of record keeps them.
	snapshotTTL = 24 * time.Hour
)

// SnapshotPublisher writes round snapshots to Redis. Clients polling the
// current round read the mirror instead of hitting the engine.
type SnapshotPublisher struct {
	rdb *redis.Client
}

// NewSnapshotPublisher constructs a publisher on the given client.
func NewSnapshotPublisher(rdb *redis.Client) *SnapshotPublisher {
	return &SnapshotPublisher{rdb: rdb}
}

// Publish mirrors the snapshot under both its round key and, for non-terminal
// rounds, the current-round key.
func (p *SnapshotPublisher) Publish(ctx context.Context, snap round.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	key := fmt.Sprintf(roundKeyFm, snap.RoundID)
	if err := p.rdb.Set(ctx, key, data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("mirror snapshot: %w", err)
	}
	if !snap.Phase.Terminal() {
		if err := p.rdb.Set(ctx, currentKey, data, snapshotTTL).Err(); err != nil {
			return fmt.Errorf("mirror current snapshot: %w", err)
		}
	}
	return nil
}

// Current reads the mirrored current-round snapshot.
func (p *SnapshotPublisher) Current(ctx context.Context) (round.Snapshot, error) {
	return p.get(ctx, currentKey)
}

// Round reads the mirrored snapshot of a specific round.
func (p *SnapshotPublisher) Round(ctx context.Context, roundID uint64) (round.Snapshot, error) {
	return p.get(ctx, fmt.Sprintf(roundKeyFm, roundID))
}

func (p *SnapshotPublisher) get(ctx context.Context, key string) (round.Snapshot, error) {
	data, err := p.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return round.Snapshot{}, storage.ErrNotFound
	}
	if err != nil {
		return round.Snapshot{}, err
	}
	var snap round.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return round.Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}
