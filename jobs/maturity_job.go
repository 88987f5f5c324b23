package jobs

import (
	"context"
	"time"

	"github.com/anjiri1684/studio_booking/services"
	"github.com/sirupsen/logrus"
)

type Maturer interface {
	MatureEarnings(ctx context.Context) (services.SweepResult, error)
}

// MatureEarnings completes finished sessions and releases held earnings.
func MatureEarnings(log *logrus.Logger, bookings Maturer, timeout time.Duration) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		res, err := bookings.MatureEarnings(ctx)
		if err != nil {
			log.WithError(err).WithField("job", "mature_earnings").Error("job failed")
			return
		}
		log.WithFields(logrus.Fields{
			"job":       "mature_earnings",
			"completed": res.Completed,
			"settled":   res.Settled,
			"penalties": res.Penalties,
		}).Debug("job finished")
	}
}
