package scheduler

import (
	"context"

	"go.uber.org/zap"
)

const jobLockPrefix = "scheduler:job:"

// withJobLock runs fn only if this replica wins the job's lease for the tick.
// A lease held elsewhere is not an error; the job is skipped.
func (s *Scheduler) withJobLock(ctx context.Context, job string, fn func(ctx context.Context) error) error {
	key := jobLockPrefix + job
	token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		return err
	}
	if !ok {
		s.logger(ctx).Debug("scheduler.job.skipped",
			zap.String("job", job),
			zap.String("reason", "lease_held"),
		)
		return nil
	}
	defer func() {
		// Release on a fresh context so a cancelled tick still frees the lease.
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.log.Warn("scheduler.job.release_failed", zap.String("job", job), zap.Error(err))
		}
	}()

	return fn(ctx)
}
