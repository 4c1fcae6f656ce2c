package scheduler

import (
	"context"
	"log"
	"time"

	"TrainPay/internal/services"
)

// DefaultInterval is how often the auto-release sweep runs.
const DefaultInterval = time.Hour

// Scheduler periodically confirms and releases escrows whose 24-hour
// confirmation window has lapsed.
type Scheduler struct {
	svc      *services.EscrowService
	interval time.Duration
}

func New(svc *services.EscrowService, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{svc: svc, interval: interval}
}

// Run blocks until ctx is cancelled. One sweep runs immediately on start so
// a restarted service catches up without waiting a full interval.
func (s *Scheduler) Run(ctx context.Context) {
	s.sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("⏹️ Auto-release scheduler stopped")
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Scheduler) sweep() {
	processed, err := s.svc.ProcessAutoReleases()
	if err != nil {
		log.Printf("⚠️ Auto-release sweep error: %v", err)
	}
	if processed > 0 {
		log.Printf("✅ Auto-released %d escrow(s)", processed)
	}
}
