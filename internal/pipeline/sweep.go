package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/reportsvc/go-report-pipeline/internal/reports"
)

const sweepBatchLimit = 100

// RedispatchStuck re-scans requests stuck in PAID past the given age and
// retries dispatch for each. Runs out of band (cmd/sweeper), never on
// the hot path. Returns the number of requests it attempted.
func (o *Orchestrator) RedispatchStuck(ctx context.Context, stuckAfter time.Duration) (int, error) {
	cutoff := time.Now().Add(-stuckAfter)
	stuck, err := o.store.ListStuck(ctx, reports.StatePaid, cutoff, sweepBatchLimit)
	if err != nil {
		return 0, err
	}

	attempted := 0
	for i := range stuck {
		rec := stuck[i]
		attempted++
		if err := o.dispatchPaid(ctx, &rec); err != nil {
			// Keep sweeping; the record stays PAID and the next pass
			// picks it up again.
			o.logger.Warn("sweep redispatch failed",
				zap.String("report_id", rec.ReportID),
				zap.Error(err),
			)
			continue
		}
		o.logger.Info("sweep redispatched stuck report", zap.String("report_id", rec.ReportID))
	}
	return attempted, nil
}
