package sweeper

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// NextRun returns the first moment strictly after now at hour:00 in now's location.
func NextRun(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, hour, 0, 0, 0, now.Location())
	}
	return next
}

// Daily calls job once a day at hour:00 in loc until ctx is cancelled.
func Daily(ctx context.Context, loc *time.Location, hour int, name string, job func(context.Context)) {
	for {
		next := NextRun(time.Now().In(loc), hour)
		log.Infof("%s: next run at %s", name, next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Infof("%s: stopped", name)
			return
		case <-timer.C:
			job(ctx)
		}
	}
}
