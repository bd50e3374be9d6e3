package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/datapult/insightsync/internal"
	"github.com/datapult/insightsync/internal/models"
)

type configGetter interface {
	GetInt(ctx context.Context, key string, fallback int) int
}

// Decision is the controller's verdict for one failed attempt: either a
// time-delayed re-submission or a terminal give-up.
type Decision struct {
	GiveUp      bool
	Delay       time.Duration
	NextAttempt int
}

// Controller bounds re-attempts per logical unit of work. Backoff is
// fixed-interval, as configured, not exponential.
type Controller struct {
	configs configGetter
	log     *slog.Logger
}

func NewController(configs configGetter, log *slog.Logger) *Controller {
	return &Controller{
		configs: configs,
		log:     log,
	}
}

// MaxAttempts reads the configured attempt bound, defaulting when absent.
func (c *Controller) MaxAttempts(ctx context.Context) int {
	n := c.configs.GetInt(ctx, internal.ConfigKeyMaxAttempts, internal.DefaultMaxAttempts)
	if n < 0 {
		n = internal.DefaultMaxAttempts
	}
	return n
}

// Interval reads the configured fixed retry delay, defaulting when absent.
func (c *Controller) Interval(ctx context.Context) time.Duration {
	mins := c.configs.GetInt(ctx, internal.ConfigKeyRetryIntervalMins, internal.DefaultRetryIntervalMinutes)
	if mins <= 0 {
		mins = internal.DefaultRetryIntervalMinutes
	}
	return time.Duration(mins) * time.Minute
}

// Decide returns a delayed re-submission while attempts remain, otherwise a
// terminal give-up.
func (c *Controller) Decide(ctx context.Context, unit models.JobUnit) Decision {
	if unit.AttemptCount < c.MaxAttempts(ctx) {
		return Decision{ //nolint:exhaustruct // not a give-up
			Delay:       c.Interval(ctx),
			NextAttempt: unit.AttemptCount + 1,
		}
	}

	return Decision{GiveUp: true} //nolint:exhaustruct // terminal
}
