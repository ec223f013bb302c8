package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// inspired by https://github.com/krayzpipes/cronticker/blob/main/cronticker/ticker.go

// Ticker drives the periodic jobs: client heartbeats and server stats refreshes.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type StdTicker struct {
	*time.Ticker
}

func (g *StdTicker) Chan() <-chan time.Time {
	return g.C
}

func NewStdTicker(d time.Duration) *StdTicker {
	return &StdTicker{time.NewTicker(d)}
}

var _ Ticker = (*StdTicker)(nil)

// CronTicker ticks on a cron schedule. Stop must be called to release its goroutine.
type CronTicker struct {
	c    chan time.Time
	stop chan struct{}
}

var _ Ticker = (*CronTicker)(nil)

func (c *CronTicker) Stop() {
	close(c.stop)
}

func (c *CronTicker) Chan() <-chan time.Time {
	return c.c
}

// NewCronTicker parses schedule (optional seconds field, descriptors such as @every 1m,
// optional TZ= prefix defaulting to UTC) and starts ticking.
func NewCronTicker(schedule string) (*CronTicker, error) {
	withTZ, loc, err := guaranteeTimeZone(schedule)
	if err != nil {
		return nil, err
	}
	parsed, err := scheduleParser.Parse(withTZ)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", schedule, err)
	}
	t := &CronTicker{
		c:    make(chan time.Time, 1),
		stop: make(chan struct{}),
	}
	go t.run(parsed, loc)
	return t, nil
}

var scheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func guaranteeTimeZone(schedule string) (string, *time.Location, error) {
	if !strings.HasPrefix(schedule, "TZ=") {
		schedule = "TZ=UTC " + schedule
	}
	end := strings.Index(schedule, " ")
	if end < 0 {
		return schedule, nil, fmt.Errorf("schedule %q has no fields", schedule)
	}
	loc, err := time.LoadLocation(schedule[len("TZ="):end])
	if err != nil {
		return schedule, nil, fmt.Errorf("load location: %w", err)
	}
	return schedule, loc, nil
}

func (c *CronTicker) run(schedule cron.Schedule, loc *time.Location) {
	timer := time.NewTimer(time.Until(schedule.Next(time.Now().In(loc))))
	defer timer.Stop()
	for {
		select {
		case <-c.stop:
			return
		case tick := <-timer.C:
			select {
			case c.c <- tick:
			default:
				// consumer is busy, drop the tick
			}
			timer.Reset(time.Until(schedule.Next(tick.In(loc))))
		}
	}
}
