/**
 * @description
 * Deposit webhook reconciliation. The gateway notifies the backend of charge
 * outcomes by POSTing signed events; this file verifies the signature over
 * the raw body, re-verifies the charge against the gateway's authoritative
 * record, and settles the ledger exactly once per reference.
 *
 * The order of operations is load-bearing: the HMAC is computed over the
 * exact bytes received, before any parsing, and the ledger is only touched
 * after the gateway's verify-by-reference call confirms the charge.
 *
 * @dependencies
 * - encoding/json, errors, log: Standard Go libraries.
 * - internal/store: Idempotency gate sentinels.
 * - pkg/paystack: Signature verification and the authoritative verify call.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/iabbakr/callondemand-backend/internal/store"
	"github.com/iabbakr/callondemand-backend/pkg/paystack"
	"github.com/iabbakr/callondemand-backend/pkg/rabbitmq"
)

// EventChargeSuccess is the gateway event that settles a deposit. Every
// other event type is acknowledged without ledger action.
const EventChargeSuccess = "charge.success"

// ErrInvalidSignature marks a webhook whose signature does not match the
// HMAC of the raw body. The sender still receives 200; nothing is mutated.
var ErrInvalidSignature = errors.New("webhook signature mismatch")

// webhookEvent is the parsed shape of a gateway notification. Only the
// event type and reference are read from it; amount and status come from
// the authoritative verify call, never from the webhook body.
type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
	} `json:"data"`
}

// HandleDepositWebhook processes one signed gateway notification. The
// returned error is for logging and tests only: the HTTP handler answers
// 200 regardless, because the gateway's own delivery retries plus the
// idempotency gate are the recovery mechanism.
func (s *Service) HandleDepositWebhook(ctx context.Context, rawBody []byte, signatureHeader string) error {
	// 1. Verify the keyed hash over the raw, unparsed bytes.
	if !paystack.VerifyWebhookSignature(s.webhookSecret, rawBody, signatureHeader) {
		log.Printf("level=warn component=reconciler msg=\"webhook rejected: signature mismatch\"")
		return ErrInvalidSignature
	}

	// 2. Parse only after the body is trusted.
	var event webhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		log.Printf("level=warn component=reconciler msg=\"webhook body unparsable\" err=%v", err)
		return fmt.Errorf("failed to parse webhook body: %w", err)
	}

	if event.Event != EventChargeSuccess {
		log.Printf("level=info component=reconciler msg=\"webhook acknowledged without ledger action\" event=%s reference=%s", event.Event, event.Data.Reference)
		return nil
	}
	if event.Data.Reference == "" {
		log.Printf("level=warn component=reconciler msg=\"charge.success webhook missing reference\"")
		return nil
	}

	return s.settleVerifiedDeposit(ctx, event.Data.Reference)
}

// settleVerifiedDeposit re-verifies a reference with the gateway and, if the
// authoritative record reports success, credits the ledger through the
// idempotency gate. Shared by the webhook path and the pending-deposit sweep.
func (s *Service) settleVerifiedDeposit(ctx context.Context, reference string) error {
	// 3. Never trust webhook fields; fetch the authoritative record.
	verified, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		log.Printf("level=warn component=reconciler msg=\"gateway verify failed\" reference=%s err=%v", reference, err)
		return fmt.Errorf("failed to verify transaction %s: %w", reference, err)
	}

	// 4. No ledger action unless the gateway says the charge settled.
	if verified.Status != domainStatusSuccessAtGateway {
		log.Printf("level=warn component=reconciler msg=\"webhook claimed success but gateway disagrees\" reference=%s gateway_status=%s", reference, verified.Status)
		return nil
	}

	// 5-6. Idempotency gate and atomic credit, minor units converted to
	// major units for storage.
	amount := fromMinorUnits(verified.Amount)
	settled, err := s.repo.SettleDeposit(ctx, reference, amount)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrTransactionNotFound):
			// A charge not initiated through this system, or an initialize
			// that failed to persist its pending record. A no-op, not a bug.
			log.Printf("level=warn component=reconciler msg=\"no ledger record for verified charge\" reference=%s", reference)
			return nil
		case errors.Is(err, store.ErrTransactionSettled):
			log.Printf("level=info component=reconciler msg=\"duplicate delivery ignored\" reference=%s", reference)
			return nil
		case errors.Is(err, store.ErrUserNotFound):
			log.Printf("level=warn component=reconciler msg=\"ledger record references missing user\" reference=%s", reference)
			return nil
		default:
			return fmt.Errorf("failed to settle deposit %s: %w", reference, err)
		}
	}

	log.Printf("level=info component=reconciler msg=\"deposit settled\" reference=%s user_id=%s amount=%s", settled.Reference, settled.UserID, amount.String())
	s.publishWalletEvent(ctx, rabbitmq.RouteDepositSettled, settled.UserID, settled.Reference, amount)
	return nil
}

// domainStatusSuccessAtGateway is the gateway's terminal success status for
// a verified charge.
const domainStatusSuccessAtGateway = "success"
