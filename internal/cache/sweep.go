package cache

import "github.com/TigerSong/OAP/internal/scheduler"

// SweepJobName is the scheduler job registered by ScheduleSweep.
const SweepJobName = "handle-cache-sweep"

// ScheduleSweep registers a periodic Sweep on s. schedule is a Go duration
// or a six-field cron expression.
func (c *Cache) ScheduleSweep(s *scheduler.Scheduler, schedule string) error {
	return s.UpdateJob(SweepJobName, schedule, func() {
		if n := c.Sweep(); n > 0 {
			c.logger.Debug("cache sweep", "evicted", n)
		}
	})
}
