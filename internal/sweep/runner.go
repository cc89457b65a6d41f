// Package sweep runs the deadline pass on an interval.
package sweep

import (
	"context"
	"log"
	"time"

	"bookline/internal/engine"
)

const DefaultInterval = time.Minute

// Runner drives Engine.Sweep on a ticker until the context is done.
type Runner struct {
	Engine   engine.Engine
	Interval time.Duration
	ActorID  string
	Logger   *log.Logger
}

func (r Runner) logger() *log.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.Default()
}

func (r Runner) interval() time.Duration {
	if r.Interval > 0 {
		return r.Interval
	}
	return DefaultInterval
}

// Run sweeps immediately, then on every tick. Returns nil when the
// context is cancelled.
func (r Runner) Run(ctx context.Context) error {
	r.once(ctx)
	ticker := time.NewTicker(r.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.once(ctx)
		}
	}
}

func (r Runner) once(ctx context.Context) {
	actor := r.ActorID
	if actor == "" {
		actor = "sweeper"
	}
	res, err := r.Engine.Sweep(ctx, actor)
	if err != nil {
		r.logger().Printf("sweep: %v", err)
		return
	}
	if res.Processed > 0 || len(res.Errors) > 0 {
		r.logger().Printf("sweep: processed=%d escalated=%d options_sent=%d no_availability=%d errors=%d",
			res.Processed, res.Escalated, res.OptionsSent, res.NoAvailability, len(res.Errors))
	}
	for _, e := range res.Errors {
		r.logger().Printf("sweep: %s", e)
	}
}
