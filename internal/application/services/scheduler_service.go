package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nexusflow/backend/pkg/constants"
)

// SchedulerService drives the escalation sweep in the background. It runs on
// a fixed ticker by default; setting SWEEP_CRON switches to a cron schedule
// (standard 5-field expressions) for deployments that want quiet hours.
type SchedulerService struct {
	escalation *EscalationService
	interval   time.Duration
	cronExpr   string
	stopChan   chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	stopped    bool // Prevents double-close of stopChan
}

// NewSchedulerService creates a new scheduler service, reading SWEEP_INTERVAL_SECS
// and SWEEP_CRON from the environment.
func NewSchedulerService(escalation *EscalationService) *SchedulerService {
	interval := time.Duration(constants.SweepDefaultIntervalSecs) * time.Second
	if v := os.Getenv("SWEEP_INTERVAL_SECS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			interval = time.Duration(secs) * time.Second
		}
	}

	return &SchedulerService{
		escalation: escalation,
		interval:   interval,
		cronExpr:   os.Getenv("SWEEP_CRON"),
		stopChan:   make(chan struct{}),
	}
}

// Start begins the scheduler background loop
func (s *SchedulerService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	log.Printf("⏰ Escalation scheduler starting (interval %s)...", s.interval)

	// Run immediately on start
	s.runSweep()

	for {
		wait := s.interval
		if s.cronExpr != "" {
			if next, err := nextCronRun(s.cronExpr); err == nil {
				wait = time.Until(next)
			} else {
				log.Printf("⚠️ Invalid SWEEP_CRON %q, falling back to interval: %v", s.cronExpr, err)
				s.cronExpr = ""
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			s.runSweep()
		case <-s.stopChan:
			timer.Stop()
			log.Println("⏰ Escalation scheduler stopping...")
			s.wg.Wait() // Wait for a running sweep to complete
			log.Println("⏰ Escalation scheduler stopped")
			return
		}
	}
}

// Stop gracefully stops the scheduler
func (s *SchedulerService) Stop() {
	s.mu.Lock()
	if !s.running || s.stopped {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.stopped = true
	s.mu.Unlock()

	close(s.stopChan)
}

// runSweep executes one sweep with panic recovery
func (s *SchedulerService) runSweep() {
	s.wg.Add(1)
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("🔥 Panic in escalation sweep: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	s.escalation.Sweep(ctx)
}

// nextCronRun parses a 5-field cron expression and returns the next run time
func nextCronRun(cronExpr string) (time.Time, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule.Next(time.Now().UTC()), nil
}
