package jobs

import (
	"context"
	"time"

	"rentcar-backend/internal/logger"
)

const (
	releaseBatchSize = 100
	releaseTimeout   = 2 * time.Minute
)

// ReleaseStalePendingBookings expires bookings left in pending_payment longer than the
// configured hold so their dates become bookable again. Batches repeat until one comes back short.
func (jr *JobRunner) ReleaseStalePendingBookings() {
	jr.runWithRecovery("ReleaseStalePendingBookings", func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()

		hold := time.Duration(jr.config.Checkout.PendingPaymentTTLMinutes) * time.Minute
		total := 0
		for {
			released, err := jr.services.Payment.ReleaseStalePending(ctx, hold, releaseBatchSize)
			if err != nil {
				logger.Error("Failed to release stale pending bookings", "error", err, "releasedSoFar", total)
				return
			}
			total += released
			if released < releaseBatchSize || ctx.Err() != nil {
				break
			}
		}

		logger.Info("Released stale pending bookings", "count", total, "hold", hold.String())
	})
}
