package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/yourorg/shieldpool/pkg/merkle"
)

// MemoryLedger mirrors the pool contract's observable semantics in memory:
// an append-only leaf log, a set of historically known roots and a
// nullifier registry that rejects reuse. It exists so the reconstructor
// and orchestrator are testable without a node.
type MemoryLedger struct {
	mu         sync.Mutex
	netID      string
	leaves     []Leaf
	knownRoots map[[32]byte]bool
	nullifiers map[[32]byte]bool
	receipts   map[common.Hash]*Receipt
	pending    map[common.Hash]int // remaining polls before the receipt lands
	blockNum   uint64

	// ReceiptDelay is how many TxReceipt polls a submitted transaction
	// stays pending for. Zero confirms immediately.
	ReceiptDelay int
}

func NewMemoryLedger(netID string) *MemoryLedger {
	m := &MemoryLedger{
		netID:      netID,
		knownRoots: make(map[[32]byte]bool),
		nullifiers: make(map[[32]byte]bool),
		receipts:   make(map[common.Hash]*Receipt),
		pending:    make(map[common.Hash]int),
	}
	emptyRoot := merkle.New(merkle.Height, nil).Root()
	m.knownRoots[emptyRoot.Bytes()] = true
	return m
}

// Append inserts a commitment leaf and records the new root as known,
// as the contract does on every deposit.
func (m *MemoryLedger) Append(commitment fr.Element) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(commitment)
}

func (m *MemoryLedger) appendLocked(commitment fr.Element) uint32 {
	idx := uint32(len(m.leaves))
	m.leaves = append(m.leaves, Leaf{Index: idx, Commitment: commitment})
	values := make([]fr.Element, len(m.leaves))
	for i := range m.leaves {
		values[i] = m.leaves[i].Commitment
	}
	root := merkle.New(merkle.Height, values).Root()
	m.knownRoots[root.Bytes()] = true
	return idx
}

func (m *MemoryLedger) DepositLeaves(_ context.Context, fromBlock uint64) ([]Leaf, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = fromBlock // every leaf is retained; block pruning is an RPC concern
	out := make([]Leaf, len(m.leaves))
	copy(out, m.leaves)
	return out, nil
}

func (m *MemoryLedger) IsKnownRoot(_ context.Context, root [32]byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.knownRoots[root], nil
}

func (m *MemoryLedger) IsSpent(_ context.Context, nullifierHash [32]byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nullifiers[nullifierHash], nil
}

// MarkSpent registers a nullifier hash directly, standing in for a
// withdrawal submitted by some other client.
func (m *MemoryLedger) MarkSpent(nullifierHash [32]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nullifiers[nullifierHash] = true
}

func (m *MemoryLedger) SubmitDeposit(_ context.Context, commitment [32]byte, _ *big.Int) (common.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var c fr.Element
	c.SetBytes(commitment[:])
	idx := m.appendLocked(c)
	return m.mintLocked(crypto.Keccak256Hash(commitment[:], []byte{byte(idx)})), nil
}

func (m *MemoryLedger) SubmitWithdraw(_ context.Context, call *WithdrawCall) (common.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.knownRoots[call.Root] {
		return common.Hash{}, fmt.Errorf("%w: unknown root", ErrLedgerCallFailed)
	}
	if m.nullifiers[call.NullifierHash] {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrLedgerCallFailed, ErrAlreadySpent)
	}
	m.nullifiers[call.NullifierHash] = true
	return m.mintLocked(crypto.Keccak256Hash(call.NullifierHash[:])), nil
}

// Mine registers a receipt for an externally produced transaction hash,
// e.g. one returned by a relay.
func (m *MemoryLedger) Mine(tx common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mintReceiptLocked(tx)
}

func (m *MemoryLedger) mintLocked(tx common.Hash) common.Hash {
	if m.ReceiptDelay > 0 {
		m.pending[tx] = m.ReceiptDelay
		return tx
	}
	m.mintReceiptLocked(tx)
	return tx
}

func (m *MemoryLedger) mintReceiptLocked(tx common.Hash) {
	m.blockNum++
	m.receipts[tx] = &Receipt{TxHash: tx, BlockNumber: m.blockNum}
}

func (m *MemoryLedger) TxReceipt(_ context.Context, tx common.Hash) (*Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if left, ok := m.pending[tx]; ok {
		if left > 1 {
			m.pending[tx] = left - 1
			return nil, nil
		}
		delete(m.pending, tx)
		m.mintReceiptLocked(tx)
	}
	return m.receipts[tx], nil
}

func (m *MemoryLedger) NetworkID(context.Context) (string, error) {
	return m.netID, nil
}
