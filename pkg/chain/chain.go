// Package chain abstracts the ledger behind a capability interface and
// reconstructs the commitment tree from its deposit event log.
package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrNotFound: the commitment has no matching leaf. Usually a note
	// decode mismatch or a deposit that has not confirmed yet.
	ErrNotFound = errors.New("chain: commitment not found in deposit log")
	// ErrAlreadySpent: the nullifier hash is registered on the ledger.
	ErrAlreadySpent = errors.New("chain: nullifier already spent")
	// ErrTreeCorrupted: the reconstructed root is unknown to the ledger.
	// Fatal; retrying without fixing the reconstruction is pointless.
	ErrTreeCorrupted = errors.New("chain: reconstructed tree root not known to ledger")
	// ErrLedgerCallFailed wraps transport-level failures.
	ErrLedgerCallFailed = errors.New("chain: ledger call failed")
)

// Leaf is one entry of the deposit event log.
type Leaf struct {
	Index      uint32
	Commitment fr.Element
}

// WithdrawCall carries the proof calldata and the public arguments in the
// verifier contract's ABI order.
type WithdrawCall struct {
	Proof         [8]*big.Int
	Root          [32]byte
	NullifierHash [32]byte
	Recipient     common.Address
	Relayer       common.Address
	Fee           *big.Int
	Refund        *big.Int
}

// Receipt is the confirmation record of a mined transaction.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
}

// Ledger is the capability surface the engine needs from the chain.
// Implementations: EthLedger over JSON-RPC and MemoryLedger for tests.
type Ledger interface {
	// DepositLeaves returns the deposit log from fromBlock to head.
	// Delivery order is not guaranteed; callers must sort.
	DepositLeaves(ctx context.Context, fromBlock uint64) ([]Leaf, error)
	IsKnownRoot(ctx context.Context, root [32]byte) (bool, error)
	IsSpent(ctx context.Context, nullifierHash [32]byte) (bool, error)
	SubmitDeposit(ctx context.Context, commitment [32]byte, value *big.Int) (common.Hash, error)
	SubmitWithdraw(ctx context.Context, call *WithdrawCall) (common.Hash, error)
	// TxReceipt returns (nil, nil) while the transaction is still pending.
	TxReceipt(ctx context.Context, tx common.Hash) (*Receipt, error)
	NetworkID(ctx context.Context) (string, error)
}
