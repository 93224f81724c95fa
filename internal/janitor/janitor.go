// Package janitor prunes old runs from the history store on a cron
// schedule.
package janitor

import (
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner is the slice of the run store the janitor needs
type Pruner interface {
	DeleteRunsBefore(cutoff time.Time) (int64, error)
}

// Config holds the retention settings
type Config struct {
	Cron   string // standard 5-field cron expression
	MaxAge time.Duration
}

// Janitor runs retention sweeps. It polls its schedule once a minute
// instead of holding a timer per expression.
type Janitor struct {
	cfg      Config
	store    Pruner
	schedule cron.Schedule
	lastRun  time.Time
	mu       sync.Mutex
	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a janitor; the cron expression is validated here
func New(cfg Config, store Pruner) (*Janitor, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cfg.Cron)
	if err != nil {
		return nil, err
	}
	return &Janitor{
		cfg:      cfg,
		store:    store,
		schedule: schedule,
		stop:     make(chan struct{}),
	}, nil
}

// Start begins the sweep loop in a goroutine
func (j *Janitor) Start() {
	go j.loop()
}

// Stop terminates the sweep loop
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() { close(j.stop) })
}

func (j *Janitor) loop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if j.ShouldRun(now) {
				j.Sweep(now)
			}
		case <-j.stop:
			return
		}
	}
}

// ShouldRun reports whether a sweep is due at the given time
func (j *Janitor) ShouldRun(now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	last := j.lastRun
	if last.IsZero() {
		last = now.Add(-24 * time.Hour)
	}
	return now.After(j.schedule.Next(last))
}

// Sweep deletes runs older than the retention window
func (j *Janitor) Sweep(now time.Time) {
	j.mu.Lock()
	j.lastRun = now
	j.mu.Unlock()

	cutoff := now.Add(-j.cfg.MaxAge)
	deleted, err := j.store.DeleteRunsBefore(cutoff)
	if err != nil {
		log.Printf("[janitor] sweep failed: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("[janitor] pruned %d runs older than %s", deleted, j.cfg.MaxAge)
	}
}
