package relayer

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/bloomfund/relayer/internal/config"
	"github.com/bloomfund/relayer/internal/models"
	"github.com/bloomfund/relayer/internal/signature"
	"github.com/bloomfund/relayer/pkg/logger"
)

const (
	testDomainName    = "BloomFund"
	testDomainVersion = "1"
)

// monthlyFee is the tier 1 fee used across the tests.
var monthlyFee = big.NewInt(5e18)

type fakeChain struct {
	chainID     *big.Int
	contract    common.Address
	relayerAddr common.Address

	states   map[common.Address]*models.ChainState
	stateErr map[common.Address]error
	tiers    map[uint64]*models.TierParams

	hasCode   bool
	isRelayer bool
	balance   *big.Int

	dryRunErr error
	submitErr error
	receipt   *models.SubmitReceipt

	dryRuns   []*models.Batch
	submitted []*models.Batch
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		chainID:     big.NewInt(1),
		contract:    common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		relayerAddr: common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		states:      map[common.Address]*models.ChainState{},
		stateErr:    map[common.Address]error{},
		tiers: map[uint64]*models.TierParams{
			1: {MonthlyFee: monthlyFee, PayoutAmount: big.NewInt(0).Mul(monthlyFee, big.NewInt(20)), Active: true},
		},
		hasCode:   true,
		isRelayer: true,
		balance:   new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18)),
		receipt:   &models.SubmitReceipt{TxHash: "0xf00d", BlockNumber: 42, ConfirmedAt: time.Now().Unix()},
	}
}

func (f *fakeChain) ChainID() *big.Int               { return f.chainID }
func (f *fakeChain) ContractAddress() common.Address { return f.contract }
func (f *fakeChain) RelayerAddress() common.Address  { return f.relayerAddr }
func (f *fakeChain) Close() error                    { return nil }

func (f *fakeChain) HasContractCode(ctx context.Context) (bool, error) {
	return f.hasCode, nil
}

func (f *fakeChain) IsRelayer(ctx context.Context, addr common.Address) (bool, error) {
	return f.isRelayer, nil
}

func (f *fakeChain) PolicyState(ctx context.Context, addr common.Address) (*models.ChainState, error) {
	if err := f.stateErr[addr]; err != nil {
		return nil, err
	}
	state, ok := f.states[addr]
	if !ok {
		return &models.ChainState{}, nil
	}
	return state, nil
}

func (f *fakeChain) TierParams(ctx context.Context, tier uint64) (*models.TierParams, error) {
	params, ok := f.tiers[tier]
	if !ok {
		return &models.TierParams{MonthlyFee: new(big.Int), PayoutAmount: new(big.Int)}, nil
	}
	return params, nil
}

func (f *fakeChain) RelayerBalance(ctx context.Context) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeChain) DryRunBatch(ctx context.Context, batch *models.Batch) error {
	f.dryRuns = append(f.dryRuns, batch)
	return f.dryRunErr
}

func (f *fakeChain) SubmitBatch(ctx context.Context, batch *models.Batch) (*models.SubmitReceipt, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, batch)
	return f.receipt, nil
}

func (f *fakeChain) ApproveClaim(ctx context.Context, user common.Address, claimID uint64, amountWei *big.Int) (string, error) {
	return "", nil
}

func (f *fakeChain) PayInstallment(ctx context.Context, claimID uint64) (string, error) {
	return "", nil
}

type appliedPayment struct {
	user   string
	tier   uint64
	amount string
	paidAt int64
}

type fakeRepo struct {
	auths    []*models.Authorization
	applied  []appliedPayment
	applyErr error

	lockDenied  bool
	deactivated []string
}

func (f *fakeRepo) ActiveAuthorizations() ([]*models.Authorization, error) {
	return f.auths, nil
}

func (f *fakeRepo) DeactivateAuthorizations(userAddress string) (int64, error) {
	f.deactivated = append(f.deactivated, userAddress)
	return 1, nil
}

func (f *fakeRepo) PolicyMirror(userAddress string) (*models.PolicyMirror, error) {
	return &models.PolicyMirror{UserAddress: userAddress}, nil
}

func (f *fakeRepo) ApplyPayment(userAddress string, tier uint64, amountWei string, paidAt int64) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = append(f.applied, appliedPayment{user: userAddress, tier: tier, amount: amountWei, paidAt: paidAt})
	return nil
}

func (f *fakeRepo) AcquireRunLock(instanceID string, ttl time.Duration) (bool, error) {
	return !f.lockDenied, nil
}

func (f *fakeRepo) ReleaseRunLock(instanceID string) error { return nil }

func (f *fakeRepo) Close() error { return nil }

type fakeAlerts struct {
	reports []*models.RunReport
}

func (f *fakeAlerts) RunCompleted(report *models.RunReport) {
	f.reports = append(f.reports, report)
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(true)
	require.NoError(t, err)
	return log
}

func testValidator(chain *fakeChain) *signature.Validator {
	return signature.NewValidator(testDomainName, testDomainVersion, chain.chainID, chain.contract)
}

func testConfig(chain *fakeChain) *config.Config {
	return &config.Config{
		ChainID:        chain.chainID,
		DomainName:     testDomainName,
		DomainVersion:  testDomainVersion,
		DryRun:         true,
		ConfirmTimeout: 5 * time.Second,
		RunInterval:    time.Minute,
	}
}

// signedAuth builds an authorization owned by key's address and signs it
// under the given validator's domain.
func signedAuth(t *testing.T, v *signature.Validator, key *ecdsa.PrivateKey, amount *big.Int, validUntil int64, nonce uint64) *models.Authorization {
	t.Helper()
	auth := &models.Authorization{
		UserAddress: crypto.PubkeyToAddress(key.PublicKey).Hex(),
		Tier:        1,
		Amount:      amount.String(),
		Period:      2592000,
		ValidUntil:  validUntil,
		Nonce:       nonce,
		IsActive:    true,
	}
	digest, err := v.Digest(auth)
	require.NoError(t, err)
	sig, err := crypto.Sign(digest, key)
	require.NoError(t, err)
	sig[64] += 27
	auth.Signature = hexutil.Encode(sig)
	return auth
}

func newTestKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}
