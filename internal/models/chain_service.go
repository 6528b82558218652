package models

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PolicyState is the on-chain policy record for one address.
type PolicyState struct {
	Tier      uint64
	TotalPaid *big.Int
	Active    bool
}

// ChainState is everything the assembler needs to judge one candidate,
// read fresh from the node.
type ChainState struct {
	Nonce      uint64
	LastPaidAt int64
	Policy     PolicyState
}

// TierParams are the currently configured parameters of one tier.
type TierParams struct {
	MonthlyFee   *big.Int
	PayoutAmount *big.Int
	Active       bool
}

// SubmitReceipt is the confirmed result of a batch transaction.
type SubmitReceipt struct {
	TxHash      string
	BlockNumber uint64
	ConfirmedAt int64
}

// ChainService represents a service that interacts with the insurance
// fund contract on chain. On-chain state is authoritative; readers must
// not cache across a relayer run.
type ChainService interface {
	ChainID() *big.Int
	ContractAddress() common.Address
	RelayerAddress() common.Address

	HasContractCode(ctx context.Context) (bool, error)
	IsRelayer(ctx context.Context, addr common.Address) (bool, error)
	PolicyState(ctx context.Context, addr common.Address) (*ChainState, error)
	TierParams(ctx context.Context, tier uint64) (*TierParams, error)
	RelayerBalance(ctx context.Context) (*big.Int, error)

	DryRunBatch(ctx context.Context, batch *Batch) error
	SubmitBatch(ctx context.Context, batch *Batch) (*SubmitReceipt, error)

	ApproveClaim(ctx context.Context, user common.Address, claimID uint64, amountWei *big.Int) (string, error)
	PayInstallment(ctx context.Context, claimID uint64) (string, error)

	Close() error
}
