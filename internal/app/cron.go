package app

import (
	"context"
	"time"

	"github.com/dhanjayarya01/cinemasync-backend/internal/modules/gateway/gateway"
	"github.com/dhanjayarya01/cinemasync-backend/internal/modules/room"
	pkgcron "github.com/dhanjayarya01/cinemasync-backend/internal/pkg/cron"
)

const (
	deletedRoomRetention = 30 * 24 * time.Hour
	onlineStatsRetention = 90 * 24 * time.Hour
)

// registerCronJobs registers all scheduled background jobs.
func registerCronJobs(sched *pkgcron.Scheduler, rooms *room.Service, hub *gateway.Hub) {
	sched.Register(pkgcron.Job{
		Name:        "purge_deleted_rooms",
		Description: "hard-delete rooms deleted more than 30 days ago",
		Interval:    24 * time.Hour,
		Timeout:     5 * time.Minute,
		Fn: func(ctx context.Context) error {
			_, err := rooms.PurgeDeleted(ctx, time.Now().UTC().Add(-deletedRoomRetention))
			return err
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "prune_online_stats",
		Description: "drop daily online counters older than 90 days",
		Interval:    24 * time.Hour,
		Timeout:     time.Minute,
		Fn: func(ctx context.Context) error {
			_, err := hub.PruneStats(ctx, onlineStatsRetention)
			return err
		},
	})
}
