// Package jobs holds the periodic sweeps that move bookings along without a
// user action.
package jobs

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const runTimeout = 50 * time.Second

type Sweeper interface {
	Expirer
	Maturer
}

type Schedules struct {
	Expiry   string
	Maturity string
}

// Schedule registers both sweeps on c. Overlapping runs of the same job are
// skipped rather than stacked.
func Schedule(c *cron.Cron, log *logrus.Logger, bookings Sweeper, s Schedules) error {
	skip := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger))
	if _, err := c.AddJob(s.Expiry, skip.Then(cron.FuncJob(ExpireUnpaidBookings(log, bookings, runTimeout)))); err != nil {
		return fmt.Errorf("schedule expiry sweep %q: %w", s.Expiry, err)
	}
	if _, err := c.AddJob(s.Maturity, skip.Then(cron.FuncJob(MatureEarnings(log, bookings, runTimeout)))); err != nil {
		return fmt.Errorf("schedule maturity sweep %q: %w", s.Maturity, err)
	}
	log.WithFields(logrus.Fields{"expiry": s.Expiry, "maturity": s.Maturity}).Info("cron jobs scheduled")
	return nil
}
