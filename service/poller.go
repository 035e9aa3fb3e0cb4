package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Poller runs named jobs at fixed intervals until stopped.
// A job that is still running when its next tick fires is skipped.
type Poller struct {
	cron *cron.Cron
	log  *logrus.Entry

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[string]cron.EntryID
}

// NewPoller creates a stopped poller
func NewPoller(log *logrus.Entry) *Poller {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "poller")

	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log)))),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]cron.EntryID),
	}
}

// Every schedules job under name, replacing a job with the same name.
// Intervals below one second are rounded up to one second.
func (p *Poller) Every(name string, interval time.Duration, job func(ctx context.Context) error) error {
	if interval <= 0 {
		return fmt.Errorf("poll interval for %s must be positive", name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.entries[name]; ok {
		p.cron.Remove(id)
	}

	id := p.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		ctx := p.context()
		if ctx.Err() != nil {
			return
		}
		if err := job(ctx); err != nil {
			p.log.WithError(err).WithField("job", name).Warn("poll failed")
		}
	}))
	p.entries[name] = id

	return nil
}

// Remove unschedules the job registered under name
func (p *Poller) Remove(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.entries[name]; ok {
		p.cron.Remove(id)
		delete(p.entries, name)
	}
}

// Jobs returns the number of scheduled jobs
func (p *Poller) Jobs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Start runs the scheduler until ctx is done or Stop is called
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	p.ctx, p.cancel = context.WithCancel(ctx)
	runCtx := p.ctx
	p.mu.Unlock()

	p.cron.Start()

	go func() {
		<-runCtx.Done()
		p.cron.Stop()
	}()
}

// Stop cancels running jobs and waits for them to return
func (p *Poller) Stop() {
	p.mu.Lock()
	p.cancel()
	p.mu.Unlock()

	<-p.cron.Stop().Done()
}

func (p *Poller) context() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ctx
}
