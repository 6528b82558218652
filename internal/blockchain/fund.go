package blockchain

import (
	"bytes"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/bloomfund/relayer/internal/models"
)

// FundABI is the ABI of the BloomFund insurance contract
const FundABI = `[{"inputs":[{"components":[{"internalType":"address","name":"user","type":"address"},{"internalType":"uint256","name":"tier","type":"uint256"},{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"uint256","name":"period","type":"uint256"},{"internalType":"uint256","name":"validUntil","type":"uint256"},{"internalType":"uint256","name":"nonce","type":"uint256"}],"internalType":"struct BloomFund.PaymentAuth[]","name":"auths","type":"tuple[]"},{"internalType":"bytes[]","name":"signatures","type":"bytes[]"}],"name":"batchPayPremiums","outputs":[],"stateMutability":"payable","type":"function"},{"inputs":[{"internalType":"address","name":"user","type":"address"}],"name":"nonces","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},{"inputs":[{"internalType":"address","name":"user","type":"address"}],"name":"lastPaidAt","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},{"inputs":[{"internalType":"address","name":"user","type":"address"}],"name":"policies","outputs":[{"internalType":"uint256","name":"tier","type":"uint256"},{"internalType":"uint256","name":"lastPaidAt","type":"uint256"},{"internalType":"uint256","name":"totalPaid","type":"uint256"},{"internalType":"bool","name":"active","type":"bool"}],"stateMutability":"view","type":"function"},{"inputs":[{"internalType":"uint256","name":"tier","type":"uint256"}],"name":"tiers","outputs":[{"internalType":"uint256","name":"monthlyFee","type":"uint256"},{"internalType":"uint256","name":"payoutAmount","type":"uint256"},{"internalType":"bool","name":"active","type":"bool"}],"stateMutability":"view","type":"function"},{"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"isRelayer","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"},{"inputs":[{"internalType":"address","name":"user","type":"address"},{"internalType":"uint256","name":"claimId","type":"uint256"},{"internalType":"uint256","name":"amount","type":"uint256"}],"name":"approveClaim","outputs":[],"stateMutability":"nonpayable","type":"function"},{"inputs":[{"internalType":"uint256","name":"claimId","type":"uint256"}],"name":"payInstallment","outputs":[],"stateMutability":"nonpayable","type":"function"},{"inputs":[],"name":"InvalidSignature","type":"error"},{"inputs":[],"name":"AuthorizationExpired","type":"error"},{"inputs":[],"name":"NonceAlreadyUsed","type":"error"},{"inputs":[],"name":"NotRelayer","type":"error"},{"inputs":[],"name":"InvalidTier","type":"error"}]`

var fundABI = mustParseFundABI()

func mustParseFundABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(FundABI))
	if err != nil {
		panic("invalid fund ABI: " + err.Error())
	}
	return parsed
}

// PaymentTuple mirrors the contract's PaymentAuth struct for ABI encoding.
// Field order matches the tuple components exactly.
type PaymentTuple struct {
	User       common.Address
	Tier       *big.Int
	Amount     *big.Int
	Period     *big.Int
	ValidUntil *big.Int
	Nonce      *big.Int
}

// PaymentTuples converts a batch into the parallel tuple and signature
// arrays of the batchPayPremiums call, order-preserving and one-to-one.
func PaymentTuples(batch *models.Batch) ([]PaymentTuple, [][]byte, error) {
	tuples := make([]PaymentTuple, 0, len(batch.Entries))
	signatures := make([][]byte, 0, len(batch.Entries))
	for _, entry := range batch.Entries {
		auth := entry.Authorization
		sig, err := auth.SignatureBytes()
		if err != nil {
			return nil, nil, err
		}
		tuples = append(tuples, PaymentTuple{
			User:       common.HexToAddress(auth.UserAddress),
			Tier:       new(big.Int).SetUint64(auth.Tier),
			Amount:     entry.Amount,
			Period:     big.NewInt(auth.Period),
			ValidUntil: big.NewInt(auth.ValidUntil),
			Nonce:      new(big.Int).SetUint64(auth.Nonce),
		})
		signatures = append(signatures, sig)
	}
	return tuples, signatures, nil
}

// errorStringSelector is the selector of the solidity builtin Error(string).
var errorStringSelector = []byte{0x08, 0xc3, 0x79, 0xa0}

// DecodeRevertReason maps a failed call's revert payload onto the
// contract's error taxonomy for diagnostics. The decoded name is
// best-effort: the authoritative outcome of a reverted batch is always
// "nothing changed".
func DecodeRevertReason(err error) string {
	if err == nil {
		return ""
	}

	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return err.Error()
	}
	hexData, ok := dataErr.ErrorData().(string)
	if !ok {
		return err.Error()
	}
	raw, decodeErr := hexutil.Decode(hexData)
	if decodeErr != nil || len(raw) < 4 {
		return err.Error()
	}

	if bytes.Equal(raw[:4], errorStringSelector) {
		if reason, unpackErr := abi.UnpackRevert(raw); unpackErr == nil {
			return reason
		}
		return err.Error()
	}

	for name, contractErr := range fundABI.Errors {
		if bytes.Equal(contractErr.ID.Bytes()[:4], raw[:4]) {
			return name
		}
	}
	return err.Error()
}
