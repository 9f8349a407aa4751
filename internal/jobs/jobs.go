// Package jobs runs periodic background work against the store: currently a
// low-stock scan that records an audit trail entry whenever a business has
// products below the restock threshold.
package jobs

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"

	"tokomitra/backend/internal/domain"
	"tokomitra/backend/internal/store"
	"tokomitra/backend/internal/xid"
)

type Scheduler struct {
	scheduler gocron.Scheduler
	repo      store.Repository
	threshold int
	interval  time.Duration
}

func NewScheduler(repo store.Repository, threshold int, interval time.Duration) (*Scheduler, error) {
	if threshold < 1 {
		threshold = 10
	}
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	s := &Scheduler{
		scheduler: scheduler,
		repo:      repo,
		threshold: threshold,
		interval:  interval,
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.scanLowStock, context.Background()),
		gocron.WithName("low-stock-scan"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return nil, fmt.Errorf("register low-stock job: %w", err)
	}

	return s, nil
}

func (s *Scheduler) Start() {
	log.Printf("[jobs] starting scheduler: low-stock scan every %s (threshold %d)", s.interval, s.threshold)
	s.scheduler.Start()
}

func (s *Scheduler) Stop() error {
	log.Printf("[jobs] stopping scheduler")
	return s.scheduler.Shutdown()
}

// scanLowStock walks every business and appends an audit entry naming the
// products that have fallen below the restock threshold. The entry gives
// owners a durable trail even if they never open the restock report.
func (s *Scheduler) scanLowStock(ctx context.Context) error {
	businesses, err := s.repo.ListBusinesses(ctx)
	if err != nil {
		log.Printf("[jobs] WARN: low-stock scan could not list businesses: %v", err)
		return err
	}

	flagged := 0
	for _, business := range businesses {
		candidates, err := s.repo.RestockCandidates(ctx, business.ID, s.threshold)
		if err != nil {
			log.Printf("[jobs] WARN: low-stock scan failed for business %s: %v", business.ID, err)
			continue
		}
		if len(candidates) == 0 {
			continue
		}
		flagged++

		names := make([]string, 0, len(candidates))
		for _, candidate := range candidates {
			names = append(names, fmt.Sprintf("%s(%d)", candidate.Name, candidate.QuantityOnHand))
		}
		entry := domain.AuditLog{
			ID:         xid.New(xid.Audit),
			BusinessID: business.ID,
			ActorID:    "system",
			Action:     "low_stock_alert",
			EntityType: "business",
			EntityID:   business.ID,
			Detail:     fmt.Sprintf("%d products below threshold %d: %s", len(candidates), s.threshold, strings.Join(names, ", ")),
			CreatedAt:  time.Now().UTC(),
		}
		if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
			log.Printf("[jobs] WARN: could not record low-stock alert for business %s: %v", business.ID, err)
		}
	}

	if flagged > 0 {
		log.Printf("[jobs] low-stock scan flagged %d of %d businesses", flagged, len(businesses))
	}
	return nil
}
