package relayer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bloomfund/relayer/internal/blockchain"
	"github.com/bloomfund/relayer/internal/models"
	"github.com/bloomfund/relayer/pkg/logger"
)

var (
	ErrEmptyBatch          = errors.New("batch is empty")
	ErrInsufficientFunds   = errors.New("relayer balance below batch total")
	ErrDryRunRejected      = errors.New("batch dry run rejected")
	ErrConfirmationTimeout = errors.New("batch confirmation timed out")
)

// Submitter sends one assembled batch as a single transaction and, only
// after confirmation, reconciles the off-chain mirror. A failed or
// timed-out batch makes zero mirror updates; the next scheduled run
// rebuilds a batch from fresh chain state instead of retrying.
type Submitter struct {
	chain  models.ChainService
	repo   models.Repository
	logger *logger.Logger

	dryRun         bool
	confirmTimeout time.Duration
}

func NewSubmitter(chain models.ChainService, repo models.Repository, logger *logger.Logger, dryRun bool, confirmTimeout time.Duration) *Submitter {
	return &Submitter{chain: chain, repo: repo, logger: logger, dryRun: dryRun, confirmTimeout: confirmTimeout}
}

// SubmitOutcome is the result of one confirmed batch submission.
type SubmitOutcome struct {
	TxHash      string
	ConfirmedAt int64
	// Updated counts mirror rows reconciled after confirmation.
	Updated int
}

func (s *Submitter) Submit(ctx context.Context, batch *models.Batch) (*SubmitOutcome, error) {
	if batch.Empty() {
		return nil, ErrEmptyBatch
	}

	// Insufficient balance guarantees a revert, abort before sending.
	balance, err := s.chain.RelayerBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read relayer balance: %w", err)
	}
	if balance.Cmp(batch.Total) < 0 {
		return nil, fmt.Errorf("%w: have %s wei, need %s wei", ErrInsufficientFunds, balance, batch.Total)
	}

	if s.dryRun {
		if err := s.chain.DryRunBatch(ctx, batch); err != nil {
			// The contract validates the batch atomically: one bad
			// entry rejects every entry.
			return nil, fmt.Errorf("%w: %s", ErrDryRunRejected, blockchain.DecodeRevertReason(err))
		}
	}

	submitCtx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()
	receipt, err := s.chain.SubmitBatch(submitCtx, batch)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// Outcome unknown: assume nothing, the next run re-reads
			// chain state. A duplicate submission would only be a
			// harmless nonce rejection, never a double payment.
			return nil, fmt.Errorf("%w: %s", ErrConfirmationTimeout, err)
		}
		return nil, err
	}

	s.logger.Info("Batch confirmed ", "tx ", receipt.TxHash, " entries ", len(batch.Entries), " total ", batch.Total)

	// Mirror updates happen strictly after confirmation. A failed row
	// update leaves the mirror lagging the chain, which the design
	// tolerates; it must never lead it.
	updated := 0
	for _, entry := range batch.Entries {
		auth := entry.Authorization
		if err := s.repo.ApplyPayment(auth.UserAddress, auth.Tier, entry.Amount.String(), receipt.ConfirmedAt); err != nil {
			s.logger.Error("Failed to update policy mirror ", "user ", auth.UserAddress, " error ", err)
			continue
		}
		updated++
	}

	return &SubmitOutcome{TxHash: receipt.TxHash, ConfirmedAt: receipt.ConfirmedAt, Updated: updated}, nil
}
