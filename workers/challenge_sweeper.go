package workers

import (
	"context"
	"log"
	"time"

	"reading-progress-system/services"

	"github.com/go-co-op/gocron/v2"
)

// StartChallengeSweeper schedules the periodic sweep that surfaces challenges
// whose date window has closed. Challenge closure is derived from dates, so
// the sweep only reports; it never mutates progress. Shuts down with ctx.
func StartChallengeSweeper(ctx context.Context, challenges *services.ChallengeService, every time.Duration) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			if err := challenges.SweepExpired(every); err != nil {
				log.Printf("[Sweeper] sweep failed: %v", err)
			}
		}),
	)
	if err != nil {
		return err
	}

	sched.Start()
	log.Printf("[Sweeper] challenge expiry sweep running (every %s)", every)

	go func() {
		<-ctx.Done()
		if err := sched.Shutdown(); err != nil {
			log.Printf("[Sweeper] shutdown: %v", err)
		}
	}()
	return nil
}
