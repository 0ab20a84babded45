package presencesync

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	watchlistHashKey = "presence:watchlists"
	warRoomHashKey   = "presence:warrooms"
)

// Snapshotter exposes the live occupancy counts the mirror publishes.
type Snapshotter interface {
	WatchlistOccupancy() map[string]int
	WarRoomOccupancy() map[string]int
}

// Run mirrors room occupancy into short-TTL Redis hashes on a fixed
// interval, for dashboards and cross-instance visibility. The hashes expire
// on their own, so a crashed instance leaves no stale presence behind.
func Run(ctx context.Context, rdc *redis.Client, src Snapshotter, interval time.Duration) {
	tk := time.NewTicker(interval)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				syncOnce(ctx, rdc, src, 3*interval)
			}
		}
	}()
}

func syncOnce(ctx context.Context, rdc *redis.Client, src Snapshotter, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
	defer cancel()

	pipe := rdc.Pipeline()
	mirrorHash(ctx, pipe, watchlistHashKey, src.WatchlistOccupancy(), ttl)
	mirrorHash(ctx, pipe, warRoomHashKey, src.WarRoomOccupancy(), ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		zap.L().Warn("presencesync.pipeline", zap.Error(err))
	}
}

// mirrorHash rewrites the hash in place; deleting first keeps rooms that
// emptied since the last tick from lingering as stale fields.
func mirrorHash(ctx context.Context, pipe redis.Pipeliner, key string, counts map[string]int, ttl time.Duration) {
	pipe.Del(ctx, key)
	if len(counts) == 0 {
		return
	}
	fields := make(map[string]any, len(counts))
	for roomID, n := range counts {
		fields[roomID] = n
	}
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, ttl)
}
