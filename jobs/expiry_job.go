package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type Expirer interface {
	ExpirePending(ctx context.Context) (int, error)
}

// ExpireUnpaidBookings rejects bookings whose payment hold ran out and
// releases their slots. A failed run is simply repeated on the next tick.
func ExpireUnpaidBookings(log *logrus.Logger, bookings Expirer, timeout time.Duration) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		n, err := bookings.ExpirePending(ctx)
		if err != nil {
			log.WithError(err).WithField("job", "expire_unpaid_bookings").Error("job failed")
			return
		}
		log.WithFields(logrus.Fields{"job": "expire_unpaid_bookings", "expired": n}).Debug("job finished")
	}
}
