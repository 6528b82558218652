package relayer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bloomfund/relayer/internal/models"
	"github.com/bloomfund/relayer/internal/signature"
	"github.com/bloomfund/relayer/pkg/logger"
)

// Assembler revalidates candidates against fresh chain state and
// wall-clock time and builds the batch for one submission attempt.
// The nonce and payment-timing checks mirror guards the contract enforces
// again on chain; they exist here to avoid paying gas for a submission
// destined to revert, the contract stays authoritative.
type Assembler struct {
	chain     models.ChainService
	validator *signature.Validator
	logger    *logger.Logger
}

func NewAssembler(chain models.ChainService, validator *signature.Validator, logger *logger.Logger) *Assembler {
	return &Assembler{chain: chain, validator: validator, logger: logger}
}

// Assemble filters the candidates, one per user, and returns the accepted
// batch plus a rejection record per excluded candidate. Rejections are
// never fatal to the run. Order is preserved, so the tuple and signature
// arrays derived from the batch stay one-to-one.
func (a *Assembler) Assemble(ctx context.Context, candidates []*models.Authorization, now int64) (*models.Batch, []models.Rejection) {
	batch := models.NewBatch()
	var rejections []models.Rejection

	for _, auth := range candidates {
		if reason := a.validate(ctx, auth, now); reason != "" {
			a.logger.Info("Candidate excluded ", "user ", auth.UserAddress, " reason ", reason)
			rejections = append(rejections, models.Rejection{UserAddress: auth.UserAddress, Reason: reason})
			continue
		}
		// Amount already parsed successfully inside validate.
		amount, _ := auth.AmountBig()
		batch.Add(auth, amount)
	}

	return batch, rejections
}

// validate applies the per-candidate rules in order and returns a
// rejection reason, or "" when the candidate is accepted.
func (a *Assembler) validate(ctx context.Context, auth *models.Authorization, now int64) string {
	amount, err := auth.AmountBig()
	if err != nil {
		return err.Error()
	}

	state, err := a.chain.PolicyState(ctx, common.HexToAddress(auth.UserAddress))
	if err != nil {
		// Retryable: excludes only this user, next run re-reads.
		return fmt.Sprintf("chain state unavailable: %s", err)
	}

	if auth.Nonce != state.Nonce {
		return fmt.Sprintf("nonce mismatch: authorization %d, chain %d", auth.Nonce, state.Nonce)
	}

	if now < state.LastPaidAt+auth.Period {
		return fmt.Sprintf("payment not due until %d", state.LastPaidAt+auth.Period)
	}

	tier, err := a.chain.TierParams(ctx, auth.Tier)
	if err != nil {
		return fmt.Sprintf("tier parameters unavailable: %s", err)
	}
	if !tier.Active {
		return fmt.Sprintf("tier %d is disabled", auth.Tier)
	}
	if amount.Cmp(tier.MonthlyFee) != 0 {
		return fmt.Sprintf("amount %s does not match current tier fee %s", amount, tier.MonthlyFee)
	}

	if err := a.validator.Verify(auth, now); err != nil {
		return err.Error()
	}

	return ""
}
