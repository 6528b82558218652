package relayer

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloomfund/relayer/internal/models"
)

func TestRunOnceEmptyDone(t *testing.T) {
	chain := newFakeChain()
	repo := &fakeRepo{}
	alerts := &fakeAlerts{}

	r := NewRelayer(repo, chain, alerts, testLogger(t), testConfig(chain))
	report, err := r.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, models.RunEmptyDone, report.State)
	assert.Zero(t, report.Candidates)
	assert.Empty(t, chain.submitted)
}

func TestRunOnceConfirmed(t *testing.T) {
	chain := newFakeChain()
	repo := &fakeRepo{}
	alerts := &fakeAlerts{}
	v := testValidator(chain)
	now := time.Now().Unix()

	key := newTestKey(t)
	owner := crypto.PubkeyToAddress(key.PublicKey)
	auth := signedAuth(t, v, key, monthlyFee, now+3600, 3)
	repo.auths = []*models.Authorization{auth}
	chain.states[owner] = &models.ChainState{Nonce: 3, LastPaidAt: now - auth.Period}

	r := NewRelayer(repo, chain, alerts, testLogger(t), testConfig(chain))
	report, err := r.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, models.RunConfirmed, report.State)
	assert.Equal(t, 1, report.Candidates)
	assert.Equal(t, 1, report.Accepted)
	assert.Equal(t, chain.receipt.TxHash, report.TxHash)
	require.Len(t, repo.applied, 1)
	require.Len(t, alerts.reports, 1)
	assert.Equal(t, report.ID, alerts.reports[0].ID)

	// The run report is exposed for the status API.
	assert.Equal(t, report, r.LastRun())
}

func TestRunOnceMixedBatchExcludesStaleNonce(t *testing.T) {
	chain := newFakeChain()
	repo := &fakeRepo{}
	alerts := &fakeAlerts{}
	v := testValidator(chain)
	now := time.Now().Unix()

	dueKey := newTestKey(t)
	staleKey := newTestKey(t)
	dueOwner := crypto.PubkeyToAddress(dueKey.PublicKey)
	staleOwner := crypto.PubkeyToAddress(staleKey.PublicKey)

	dueAuth := signedAuth(t, v, dueKey, monthlyFee, now+3600, 3)
	staleAuth := signedAuth(t, v, staleKey, monthlyFee, now+3600, 4)
	repo.auths = []*models.Authorization{dueAuth, staleAuth}
	chain.states[dueOwner] = &models.ChainState{Nonce: 3, LastPaidAt: now - dueAuth.Period}
	chain.states[staleOwner] = &models.ChainState{Nonce: 5, LastPaidAt: now - staleAuth.Period}

	r := NewRelayer(repo, chain, alerts, testLogger(t), testConfig(chain))
	report, err := r.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, models.RunConfirmed, report.State)
	assert.Equal(t, 2, report.Candidates)
	assert.Equal(t, 1, report.Accepted)
	require.Len(t, report.Rejections, 1)
	assert.Equal(t, staleOwner.Hex(), report.Rejections[0].UserAddress)
	assert.Equal(t, monthlyFee.String(), report.TotalWei)
}

func TestRunOnceAbortsWithoutContractCode(t *testing.T) {
	chain := newFakeChain()
	chain.hasCode = false
	repo := &fakeRepo{}

	r := NewRelayer(repo, chain, &fakeAlerts{}, testLogger(t), testConfig(chain))
	report, err := r.RunOnce(context.Background())

	require.Error(t, err)
	assert.Equal(t, models.RunAborted, report.State)
	assert.Empty(t, chain.submitted)
}

func TestRunOnceAbortsWithoutRelayerRole(t *testing.T) {
	chain := newFakeChain()
	chain.isRelayer = false
	repo := &fakeRepo{}

	r := NewRelayer(repo, chain, &fakeAlerts{}, testLogger(t), testConfig(chain))
	report, err := r.RunOnce(context.Background())

	require.Error(t, err)
	assert.Equal(t, models.RunAborted, report.State)
	assert.Empty(t, chain.submitted)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	chain := newFakeChain()
	repo := &fakeRepo{lockDenied: true}

	r := NewRelayer(repo, chain, &fakeAlerts{}, testLogger(t), testConfig(chain))
	report, err := r.RunOnce(context.Background())

	// Another run in flight is not an error, just a skipped cycle.
	require.NoError(t, err)
	assert.Equal(t, models.RunAborted, report.State)
	assert.Empty(t, chain.submitted)
}

func TestForceReauthorizationValidatesAddress(t *testing.T) {
	chain := newFakeChain()
	repo := &fakeRepo{}

	r := NewRelayer(repo, chain, &fakeAlerts{}, testLogger(t), testConfig(chain))

	_, err := r.ForceReauthorization("not-an-address")
	assert.Error(t, err)
	assert.Empty(t, repo.deactivated)

	count, err := r.ForceReauthorization("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	require.Len(t, repo.deactivated, 1)
	assert.Equal(t, "0x5fbdb2315678afecb367f032d93f642f64180aa3", repo.deactivated[0])
}
