package main

import (
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hass-addons/claude-terminal/internal/termsession"
)

// activitySyncJob copies session activity into the session store. Output
// only updates the in-memory registry; this job makes it durable in batches.
type activitySyncJob struct {
	svc *termsession.Service
	now func() time.Time

	mu       sync.Mutex
	lastSync time.Time
}

func newActivitySyncJob(svc *termsession.Service) *activitySyncJob {
	return &activitySyncJob{
		svc:      svc,
		now:      time.Now,
		lastSync: time.Now(),
	}
}

// Run syncs every session with output since the previous run.
func (j *activitySyncJob) Run() {
	j.mu.Lock()
	defer j.mu.Unlock()

	started := j.now()
	if n := j.svc.SyncActivity(j.lastSync); n > 0 {
		log.Printf("[session-store] synced activity for %d session(s)", n)
	}
	j.lastSync = started
}

// startActivitySync schedules job on a robfig/cron schedule such as "@every 1m".
func startActivitySync(job cron.Job, schedule string) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	if _, err := c.AddJob(schedule, job); err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
