/**
 * @description
 * Periodic reconciliation sweep for pending deposits. Webhook delivery is
 * best-effort, so deposits whose webhook never arrived (or arrived before
 * the pending record existed) are re-verified against the gateway on a
 * schedule and settled through the same idempotency gate as the webhook
 * path. Charges the gateway reports as failed or abandoned are closed out.
 *
 * @dependencies
 * - github.com/robfig/cron/v3: Job scheduling (wired in cmd/server).
 * - pkg/paystack: Typed gateway errors for the unknown-reference case.
 */

package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/iabbakr/callondemand-backend/pkg/paystack"
)

const sweepBatchSize = 100

// Gateway statuses that terminate a pending deposit without a credit.
var terminalFailureStatuses = map[string]bool{
	"failed":    true,
	"abandoned": true,
	"reversed":  true,
}

// SweepPendingDeposits re-verifies pending credit transactions older than
// minAge and settles or fails them. Errors on individual references are
// logged and skipped; the sweep never aborts part-way on one bad record.
func (s *Service) SweepPendingDeposits(ctx context.Context, minAge time.Duration) {
	cutoff := time.Now().Add(-minAge)
	pending, err := s.repo.ListPendingDeposits(ctx, cutoff, sweepBatchSize)
	if err != nil {
		log.Printf("level=warn component=reconcile_sweep msg=\"pending deposit listing failed\" err=%v", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	log.Printf("level=info component=reconcile_sweep msg=\"sweeping pending deposits\" count=%d cutoff=%s", len(pending), cutoff.Format(time.RFC3339))

	for _, tx := range pending {
		if ctx.Err() != nil {
			return
		}

		verified, err := s.gateway.VerifyTransaction(ctx, tx.Reference)
		if err != nil {
			var apiErr *paystack.APIError
			// A 404 means the gateway never saw this reference; anything
			// else is transient and retried on the next sweep.
			if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
				log.Printf("level=warn component=reconcile_sweep msg=\"reference unknown to gateway; marking failed\" reference=%s", tx.Reference)
				if failErr := s.repo.MarkDepositFailed(ctx, tx.Reference); failErr != nil {
					log.Printf("level=warn component=reconcile_sweep msg=\"mark failed errored\" reference=%s err=%v", tx.Reference, failErr)
				}
				continue
			}
			log.Printf("level=warn component=reconcile_sweep msg=\"verify failed; will retry next sweep\" reference=%s err=%v", tx.Reference, err)
			continue
		}

		switch {
		case verified.Status == domainStatusSuccessAtGateway:
			if err := s.settleVerifiedDeposit(ctx, tx.Reference); err != nil {
				log.Printf("level=warn component=reconcile_sweep msg=\"settle failed\" reference=%s err=%v", tx.Reference, err)
			}
		case terminalFailureStatuses[verified.Status]:
			if err := s.repo.MarkDepositFailed(ctx, tx.Reference); err != nil {
				log.Printf("level=warn component=reconcile_sweep msg=\"mark failed errored\" reference=%s err=%v", tx.Reference, err)
			}
		default:
			// Still in flight at the gateway; leave pending.
		}
	}
}
