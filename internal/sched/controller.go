package sched

import (
	"errors"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// Controller applies nice values to threads, logging failures at most a few
// times per minute per error kind.
type Controller struct {
	logger  *logiface.Logger[logiface.Event]
	limiter *catrate.Limiter
	set     func(tid, nice int) error
}

// NewController returns a Controller logging to logger (which may be nil).
func NewController(logger *logiface.Logger[logiface.Event]) *Controller {
	return &Controller{
		logger: logger,
		limiter: catrate.NewLimiter(map[time.Duration]int{
			time.Second: 1,
			time.Minute: 5,
		}),
		set: SetNice,
	}
}

// SetThreadNice sets the nice value of tid. Failures are expected for
// unprivileged processes raising priority and are only logged.
func (c *Controller) SetThreadNice(tid, nice int) {
	err := c.set(tid, nice)
	if err == nil {
		return
	}
	category := "setpriority"
	if errors.Is(err, ErrUnsupported) {
		category = "unsupported"
	}
	if _, ok := c.limiter.Allow(category); !ok {
		return
	}
	if b := c.logger.Warning(); b.Enabled() {
		b.Int("tid", tid).Int("nice", nice).Err(err).Log("failed to apply thread priority")
	}
}
