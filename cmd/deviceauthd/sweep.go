package main

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type refreshPurger interface {
	PurgeRefreshTokens(ctx context.Context, before time.Time) (int64, error)
}

// runSweep purges dead refresh token rows every interval until ctx ends.
// Rows are kept for retention after they expire or are revoked.
func runSweep(ctx context.Context, p refreshPurger, interval, retention time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			sweepOnce(ctx, p, now.Add(-retention), logger)
		}
	}
}

func sweepOnce(ctx context.Context, p refreshPurger, before time.Time, logger *zap.Logger) int64 {
	n, err := p.PurgeRefreshTokens(ctx, before)
	if err != nil {
		logger.Warn("refresh token sweep failed", zap.Error(err))
		return 0
	}
	if n > 0 {
		logger.Info("refresh token sweep", zap.Int64("purged", n), zap.Time("before", before))
	}
	return n
}
