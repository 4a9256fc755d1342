package session

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Janitor periodically sweeps idle sessions.
type Janitor struct {
	cron *cron.Cron
	svc  *Service
	log  zerolog.Logger
}

// NewJanitor schedules Sweep on spec, e.g. "@every 1m".
func NewJanitor(svc *Service, spec string, log zerolog.Logger) (*Janitor, error) {
	j := &Janitor{
		cron: cron.New(),
		svc:  svc,
		log:  log,
	}
	if _, err := j.cron.AddFunc(spec, j.run); err != nil {
		return nil, fmt.Errorf("invalid SESSION_SWEEP schedule %q: %w", spec, err)
	}
	return j, nil
}

func (j *Janitor) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := j.svc.Sweep(ctx); err != nil {
		j.log.Error().Err(err).Msg("session sweep failed")
	}
}

// Start begins the schedule in the background.
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the schedule and waits for a running sweep, bounded by ctx.
func (j *Janitor) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
