package session

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Sweeper periodically expires idle sessions. It runs on a cron schedule
// independent of request handling; Expire takes the per-session mutex, so a
// sweep never races an in-flight redaction on the same session.
type Sweeper struct {
	store *Store
	cron  *cron.Cron
}

// NewSweeper schedules an idle sweep for the store. Interval uses cron
// duration syntax, e.g. "1m" becomes "@every 1m".
func NewSweeper(store *Store, interval time.Duration) (*Sweeper, error) {
	c := cron.New()
	sw := &Sweeper{store: store, cron: c}

	_, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if n := store.SweepIdle(time.Now()); n > 0 {
			log.Debug().Int("expired", n).Msg("session sweep removed idle sessions")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling session sweep: %w", err)
	}
	return sw, nil
}

// Start begins the sweep schedule in its own goroutine.
func (sw *Sweeper) Start() { sw.cron.Start() }

// Stop halts the schedule and waits for a running sweep to finish.
func (sw *Sweeper) Stop() {
	ctx := sw.cron.Stop()
	<-ctx.Done()
}
