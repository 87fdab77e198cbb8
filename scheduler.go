package main

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var dayMap = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// StartRunScheduler runs the pipeline every week on the configured day
// and time. The returned cron keeps running until the process exits.
func StartRunScheduler(cfg Config, run func()) (*cron.Cron, error) {
	weekday, ok := dayMap[strings.ToLower(cfg.RunDay)]
	if !ok {
		return nil, fmt.Errorf("invalid run_day '%s'", cfg.RunDay)
	}
	hour, min, err := parseClock(cfg.RunTime)
	if err != nil {
		return nil, fmt.Errorf("invalid run_time '%s': %w", cfg.RunTime, err)
	}

	spec := fmt.Sprintf("%d %d * * %d", min, hour, int(weekday))
	c := cron.New(cron.WithLocation(cfg.Location))
	if _, err := c.AddFunc(spec, run); err != nil {
		return nil, fmt.Errorf("scheduling runs: %w", err)
	}
	c.Start()
	log.Printf("scheduler started: every %s at %02d:%02d (%s)", weekday, hour, min, cfg.Location)
	return c, nil
}

func parseClock(s string) (int, int, error) {
	var hour, min int
	_, err := fmt.Sscanf(s, "%d:%d", &hour, &min)
	if err != nil {
		return 0, 0, err
	}
	if hour < 0 || hour > 23 || min < 0 || min > 59 {
		return 0, 0, fmt.Errorf("time out of range: %02d:%02d", hour, min)
	}
	return hour, min, nil
}
