package blockchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/bloomfund/relayer/internal/config"
	"github.com/bloomfund/relayer/internal/models"
	"github.com/bloomfund/relayer/pkg/logger"
)

const (
	// ReadTimeout bounds every single view call against the node.
	ReadTimeout = 10 * time.Second
)

type Ethereum struct {
	logger *logger.Logger
	config *config.Config

	client *ethclient.Client

	fundContract *bind.BoundContract
	contractAddr common.Address

	key         *ecdsa.PrivateKey
	relayerAddr common.Address
	chainID     *big.Int
}

// NewEthereum creates a new Ethereum instance.
func NewEthereum(cfg *config.Config, logger *logger.Logger) *Ethereum {
	return &Ethereum{config: cfg, logger: logger}
}

// Run connects to the node, checks the endpoint's chain id against the
// configured signing domain, and binds the fund contract. A chain id
// mismatch would silently invalidate every signature, so it is fatal.
func (e *Ethereum) Run() error {
	if err := e.ConnectToRPC(); err != nil {
		return fmt.Errorf("failed to connect to the RPC server: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ReadTimeout)
	defer cancel()
	chainID, err := e.client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain id: %w", err)
	}
	if chainID.Cmp(e.config.ChainID) != 0 {
		return fmt.Errorf("endpoint chain id %s does not match configured chain id %s", chainID, e.config.ChainID)
	}
	e.chainID = chainID

	key, err := crypto.HexToECDSA(strings.TrimPrefix(e.config.RelayerPrivateKey, "0x"))
	if err != nil {
		return fmt.Errorf("failed to parse relayer private key: %w", err)
	}
	e.key = key
	e.relayerAddr = crypto.PubkeyToAddress(key.PublicKey)

	if err := e.BuildBindings(); err != nil {
		return fmt.Errorf("failed to build bindings: %w", err)
	}
	return nil
}

func (e *Ethereum) ConnectToRPC() error {
	client, err := ethclient.Dial(e.config.RPCURL)
	if err != nil {
		return fmt.Errorf("failed to connect to the RPC server: %w", err)
	}
	e.client = client
	return nil
}

func (e *Ethereum) BuildBindings() error {
	if !common.IsHexAddress(e.config.ContractAddress) {
		return fmt.Errorf("invalid fund contract address: %s", e.config.ContractAddress)
	}
	e.contractAddr = common.HexToAddress(e.config.ContractAddress)
	e.fundContract = bind.NewBoundContract(e.contractAddr, fundABI, e.client, e.client, e.client)
	return nil
}

func (e *Ethereum) ChainID() *big.Int {
	return e.chainID
}

func (e *Ethereum) ContractAddress() common.Address {
	return e.contractAddr
}

func (e *Ethereum) RelayerAddress() common.Address {
	return e.relayerAddr
}

// HasContractCode reports whether the configured contract address has
// deployed code. A codeless address means a misconfiguration; signatures
// bound to it must not be submitted anywhere.
func (e *Ethereum) HasContractCode(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, ReadTimeout)
	defer cancel()

	code, err := e.client.CodeAt(ctx, e.contractAddr, nil)
	if err != nil {
		return false, fmt.Errorf("failed to read contract code: %w", err)
	}
	return len(code) > 0, nil
}

func (e *Ethereum) IsRelayer(ctx context.Context, addr common.Address) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, ReadTimeout)
	defer cancel()

	results := []interface{}{}
	if err := e.fundContract.Call(&bind.CallOpts{Context: ctx}, &results, "isRelayer", addr); err != nil {
		return false, fmt.Errorf("failed to check relayer role: %w", err)
	}
	return results[0].(bool), nil
}

// PolicyState reads the nonce and policy record for one address directly
// from the node. Never cached: each relayer run re-reads immediately
// before deciding, so a concurrent payment cannot be double-counted.
func (e *Ethereum) PolicyState(ctx context.Context, addr common.Address) (*models.ChainState, error) {
	ctx, cancel := context.WithTimeout(ctx, ReadTimeout)
	defer cancel()
	opts := &bind.CallOpts{Context: ctx}

	results := []interface{}{}
	if err := e.fundContract.Call(opts, &results, "nonces", addr); err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	nonce := results[0].(*big.Int)

	results = []interface{}{}
	if err := e.fundContract.Call(opts, &results, "policies", addr); err != nil {
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}

	return &models.ChainState{
		Nonce:      nonce.Uint64(),
		LastPaidAt: results[1].(*big.Int).Int64(),
		Policy: models.PolicyState{
			Tier:      results[0].(*big.Int).Uint64(),
			TotalPaid: results[2].(*big.Int),
			Active:    results[3].(bool),
		},
	}, nil
}

func (e *Ethereum) TierParams(ctx context.Context, tier uint64) (*models.TierParams, error) {
	ctx, cancel := context.WithTimeout(ctx, ReadTimeout)
	defer cancel()

	results := []interface{}{}
	if err := e.fundContract.Call(&bind.CallOpts{Context: ctx}, &results, "tiers", new(big.Int).SetUint64(tier)); err != nil {
		return nil, fmt.Errorf("failed to get tier parameters: %w", err)
	}
	return &models.TierParams{
		MonthlyFee:   results[0].(*big.Int),
		PayoutAmount: results[1].(*big.Int),
		Active:       results[2].(bool),
	}, nil
}

func (e *Ethereum) RelayerBalance(ctx context.Context) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, ReadTimeout)
	defer cancel()

	balance, err := e.client.BalanceAt(ctx, e.relayerAddr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get relayer balance: %w", err)
	}
	return balance, nil
}

// DryRunBatch simulates the batch call without committing, surfacing the
// contract's revert reason before gas is spent. The contract validates
// the whole batch atomically, so any failure here fails the whole batch.
func (e *Ethereum) DryRunBatch(ctx context.Context, batch *models.Batch) error {
	tuples, signatures, err := PaymentTuples(batch)
	if err != nil {
		return err
	}
	data, err := fundABI.Pack("batchPayPremiums", tuples, signatures)
	if err != nil {
		return fmt.Errorf("failed to pack batch call: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, ReadTimeout)
	defer cancel()
	_, err = e.client.CallContract(ctx, ethereum.CallMsg{
		From:  e.relayerAddr,
		To:    &e.contractAddr,
		Value: batch.Total,
		Data:  data,
	}, nil)
	return err
}

// SubmitBatch sends the batch transaction carrying the exact summed value
// and waits for inclusion. The caller bounds ctx with the confirmation
// timeout; on timeout the outcome is unknown and nothing may be assumed.
func (e *Ethereum) SubmitBatch(ctx context.Context, batch *models.Batch) (*models.SubmitReceipt, error) {
	tuples, signatures, err := PaymentTuples(batch)
	if err != nil {
		return nil, err
	}

	opts, err := bind.NewKeyedTransactorWithChainID(e.key, e.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx
	opts.Value = batch.Total

	tx, err := e.fundContract.Transact(opts, "batchPayPremiums", tuples, signatures)
	if err != nil {
		return nil, fmt.Errorf("failed to send batch transaction: %s", DecodeRevertReason(err))
	}
	e.logger.Info("Batch transaction sent ", "tx ", tx.Hash().Hex(), " entries ", len(batch.Entries))

	receipt, err := bind.WaitMined(ctx, e.client, tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("confirmation timed out for tx %s: %w", tx.Hash().Hex(), err)
		}
		return nil, fmt.Errorf("failed to wait for batch confirmation: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("batch transaction %s reverted", tx.Hash().Hex())
	}

	confirmedAt := time.Now().Unix()
	if header, headerErr := e.client.HeaderByNumber(ctx, receipt.BlockNumber); headerErr == nil {
		confirmedAt = int64(header.Time)
	}

	return &models.SubmitReceipt{
		TxHash:      tx.Hash().Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		ConfirmedAt: confirmedAt,
	}, nil
}

// ApproveClaim submits the admin-only claim approval with an explicit,
// already converted token amount. Exchange-rate handling stays with the
// caller so no conversion constant is baked in here.
func (e *Ethereum) ApproveClaim(ctx context.Context, user common.Address, claimID uint64, amountWei *big.Int) (string, error) {
	return e.adminTransact(ctx, "approveClaim", user, new(big.Int).SetUint64(claimID), amountWei)
}

// PayInstallment submits one scheduled partial disbursement of an
// approved claim.
func (e *Ethereum) PayInstallment(ctx context.Context, claimID uint64) (string, error) {
	return e.adminTransact(ctx, "payInstallment", new(big.Int).SetUint64(claimID))
}

func (e *Ethereum) adminTransact(ctx context.Context, method string, args ...interface{}) (string, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(e.key, e.chainID)
	if err != nil {
		return "", fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx

	tx, err := e.fundContract.Transact(opts, method, args...)
	if err != nil {
		return "", fmt.Errorf("failed to send %s transaction: %s", method, DecodeRevertReason(err))
	}

	receipt, err := bind.WaitMined(ctx, e.client, tx)
	if err != nil {
		return "", fmt.Errorf("failed to wait for %s confirmation: %w", method, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("%s transaction %s reverted", method, tx.Hash().Hex())
	}
	return tx.Hash().Hex(), nil
}

func (e *Ethereum) Close() error {
	if e.client != nil {
		e.client.Close()
	}
	return nil
}
