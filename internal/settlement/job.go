// Package settlement periodically settles authorized season ticket payments.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"parking-access-backend/internal/clock"
	"parking-access-backend/internal/model"
)

// Ledger is the payment bookkeeping the job drives.
type Ledger interface {
	PendingSettlement(ctx context.Context, limit int) ([]string, error)
	SettlePayment(ctx context.Context, paymentID string, at time.Time) error
}

type Job struct {
	ledger    Ledger
	clock     clock.Clock
	batchSize int
}

func NewJob(l Ledger, clk clock.Clock, batchSize int) *Job {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Job{ledger: l, clock: clk, batchSize: batchSize}
}

// SettleAuthorized settles one batch of AUTHORIZED payments and returns how
// many moved to SETTLED. Payments that became final meanwhile are skipped.
func (j *Job) SettleAuthorized(ctx context.Context) (int, error) {
	log.Println("Cron Job: Checking for authorized payments to settle...")

	ids, err := j.ledger.PendingSettlement(ctx, j.batchSize)
	if err != nil {
		return 0, fmt.Errorf("cron job: failed to list authorized payments: %w", err)
	}
	if len(ids) == 0 {
		log.Println("Cron Job: No authorized payments found.")
		return 0, nil
	}

	settled := 0
	now := j.clock.Now()
	for _, id := range ids {
		err := j.ledger.SettlePayment(ctx, id, now)
		if errors.Is(err, model.ErrInvalidTransition) {
			continue
		}
		if err != nil {
			return settled, fmt.Errorf("cron job: failed to settle payment %s: %w", id, err)
		}
		settled++
	}

	log.Printf("Cron Job: Successfully settled %d of %d payments.", settled, len(ids))
	return settled, nil
}

// Schedule registers the job on a new cron scheduler. The caller starts and
// stops the returned scheduler.
func (j *Job) Schedule(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := j.SettleAuthorized(ctx); err != nil {
			log.Printf("Cron Job: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid settlement schedule %q: %w", spec, err)
	}
	return c, nil
}
