package relayer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bloomfund/relayer/internal/config"
	"github.com/bloomfund/relayer/internal/models"
	"github.com/bloomfund/relayer/internal/signature"
	"github.com/bloomfund/relayer/pkg/logger"
	"github.com/bloomfund/relayer/pkg/validation"
)

// Relayer is the main struct for the premium relayer application.
// One run walks the state machine
// COLLECTING -> VALIDATING -> (EMPTY-DONE | SUBMITTING) -> (CONFIRMED | REVERTED)
// sequentially; runs are serialized through the repository run lock.
type Relayer struct {
	logger *logger.Logger
	config *config.Config

	repo      models.Repository
	chain     models.ChainService
	assembler *Assembler
	submitter *Submitter
	alerts    models.AlertService

	instanceID string

	mu      sync.RWMutex
	lastRun *models.RunReport
}

// NewRelayer creates a new Relayer instance. The signature validator is
// bound to the configured domain and the chain service's contract, so a
// misdirected authorization can never validate.
func NewRelayer(
	repo models.Repository,
	chain models.ChainService,
	alerts models.AlertService,
	logger *logger.Logger,
	config *config.Config,
) models.RelayerService {
	validator := signature.NewValidator(config.DomainName, config.DomainVersion, config.ChainID, chain.ContractAddress())
	return &Relayer{
		logger:     logger,
		config:     config,
		repo:       repo,
		chain:      chain,
		assembler:  NewAssembler(chain, validator, logger),
		submitter:  NewSubmitter(chain, repo, logger, config.DryRun, config.ConfirmTimeout),
		alerts:     alerts,
		instanceID: uuid.NewString(),
	}
}

// Start runs the relayer loop until the context is cancelled. The first
// run starts immediately, then one run per configured interval.
func (r *Relayer) Start(ctx context.Context) {
	r.logger.Info("Relayer started ", "instance ", r.instanceID, " interval ", r.config.RunInterval)

	ticker := time.NewTicker(r.config.RunInterval)
	defer ticker.Stop()
	for {
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.Error("Relayer run failed ", "error ", err)
		}
		select {
		case <-ctx.Done():
			r.logger.Info("Relayer stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce executes a single collect/validate/submit cycle.
func (r *Relayer) RunOnce(ctx context.Context) (*models.RunReport, error) {
	report := &models.RunReport{
		ID:        uuid.NewString(),
		StartedAt: time.Now().Unix(),
		State:     models.RunCollecting,
	}
	defer func() {
		report.FinishedAt = time.Now().Unix()
		r.setLastRun(report)
	}()

	// The lock outlives the longest possible run so a crashed holder
	// cannot block the schedule for more than one interval.
	lockTTL := r.config.ConfirmTimeout + r.config.RunInterval
	acquired, err := r.repo.AcquireRunLock(r.instanceID, lockTTL)
	if err != nil {
		return r.abort(report, fmt.Errorf("failed to acquire run lock: %w", err))
	}
	if !acquired {
		report.State = models.RunAborted
		report.Error = "another relayer run is in flight"
		r.logger.Warn("Skipping run, lock held by another instance")
		return report, nil
	}
	defer func() {
		if err := r.repo.ReleaseRunLock(r.instanceID); err != nil {
			r.logger.Error("Failed to release run lock ", "error ", err)
		}
	}()

	// Run-level signature preconditions: the domain's verifying contract
	// must actually be deployed, and this relayer must hold the role or
	// the whole batch reverts with NotRelayer.
	hasCode, err := r.chain.HasContractCode(ctx)
	if err != nil {
		return r.abort(report, fmt.Errorf("failed to check contract code: %w", err))
	}
	if !hasCode {
		return r.abort(report, fmt.Errorf("no contract code at %s", r.chain.ContractAddress().Hex()))
	}
	isRelayer, err := r.chain.IsRelayer(ctx, r.chain.RelayerAddress())
	if err != nil {
		return r.abort(report, fmt.Errorf("failed to check relayer role: %w", err))
	}
	if !isRelayer {
		return r.abort(report, fmt.Errorf("address %s lacks the relayer role", r.chain.RelayerAddress().Hex()))
	}

	candidates, err := r.repo.ActiveAuthorizations()
	if err != nil {
		return r.abort(report, fmt.Errorf("failed to collect authorizations: %w", err))
	}
	report.Candidates = len(candidates)
	r.logger.Debug("Collected candidates ", "count ", len(candidates))

	report.State = models.RunValidating
	batch, rejections := r.assembler.Assemble(ctx, candidates, time.Now().Unix())
	report.Rejections = rejections
	report.Accepted = len(batch.Entries)

	if batch.Empty() {
		// No-op, not an error.
		report.State = models.RunEmptyDone
		r.logger.Info("No eligible candidates, run done ", "candidates ", report.Candidates)
		return report, nil
	}
	report.TotalWei = batch.Total.String()

	report.State = models.RunSubmitting
	outcome, err := r.submitter.Submit(ctx, batch)
	if err != nil {
		switch {
		case errors.Is(err, ErrConfirmationTimeout):
			report.State = models.RunTimedOut
		case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrDryRunRejected):
			report.State = models.RunAborted
		default:
			report.State = models.RunReverted
		}
		report.Error = err.Error()
		r.alerts.RunCompleted(report)
		return report, err
	}

	report.State = models.RunConfirmed
	report.TxHash = outcome.TxHash
	r.logger.Info("Run confirmed ", "tx ", outcome.TxHash, " accepted ", report.Accepted, " mirrors_updated ", outcome.Updated)
	r.alerts.RunCompleted(report)
	return report, nil
}

func (r *Relayer) abort(report *models.RunReport, err error) (*models.RunReport, error) {
	report.State = models.RunAborted
	report.Error = err.Error()
	return report, err
}

// LastRun returns the report of the most recent run, or nil.
func (r *Relayer) LastRun() *models.RunReport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRun
}

func (r *Relayer) setLastRun(report *models.RunReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastRun = report
}

// PolicyMirror returns the off-chain mirror row for an address. The
// mirror is eventually consistent; chain state stays authoritative.
func (r *Relayer) PolicyMirror(address string) (*models.PolicyMirror, error) {
	mirror, err := r.repo.PolicyMirror(address)
	if err != nil {
		r.logger.Error("Failed to get policy mirror ", "error ", err)
		return nil, err
	}
	return mirror, nil
}

// ForceReauthorization deactivates every active authorization of a user,
// forcing a fresh client-side signature before the next charge.
func (r *Relayer) ForceReauthorization(address string) (int64, error) {
	normalized, err := validation.ValidateAndNormalizeAddress(address)
	if err != nil {
		return 0, err
	}
	return r.repo.DeactivateAuthorizations(normalized)
}
