// Package prover assembles circuit inputs, encodes the verifier
// contract's public arguments and drives the Groth16 backend.
package prover

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/yourorg/shieldpool/circuits"
	"github.com/yourorg/shieldpool/pkg/chain"
	"github.com/yourorg/shieldpool/pkg/merkle"
	"github.com/yourorg/shieldpool/pkg/note"
)

// CircuitInput is the exact shape the proof backend consumes: the six
// public signals in verifier order followed by the private opening and
// authentication path. No validation happens here beyond type coercion;
// the fields feed a fixed circuit signature and the caller owns
// range/format checks.
type CircuitInput struct {
	Root          *big.Int
	NullifierHash *big.Int
	Recipient     common.Address
	Relayer       common.Address
	Fee           *big.Int
	Refund        *big.Int

	Nullifier    *big.Int
	Secret       *big.Int
	PathElements [merkle.Height]*big.Int
	PathBits     [merkle.Height]int
}

// BuildCircuitInput merges a deposit's opening with its reconstructed
// tree proof and the withdrawal parameters.
func BuildCircuitInput(dep *note.Deposit, tp *chain.TreeProof, recipient, relayer common.Address, fee, refund *big.Int) (*CircuitInput, error) {
	if len(tp.Path.Elements) != merkle.Height || len(tp.Path.Bits) != merkle.Height {
		return nil, fmt.Errorf("authentication path has %d levels, circuit needs %d", len(tp.Path.Elements), merkle.Height)
	}
	in := &CircuitInput{
		Root:          tp.Root.BigInt(new(big.Int)),
		NullifierHash: dep.NullifierHash.BigInt(new(big.Int)),
		Recipient:     recipient,
		Relayer:       relayer,
		Fee:           new(big.Int).Set(fee),
		Refund:        new(big.Int).Set(refund),
		Nullifier:     new(big.Int).Set(dep.Nullifier),
		Secret:        new(big.Int).Set(dep.Secret),
	}
	for i := 0; i < merkle.Height; i++ {
		in.PathElements[i] = tp.Path.Elements[i].BigInt(new(big.Int))
		in.PathBits[i] = int(tp.Path.Bits[i])
	}
	return in, nil
}

// Assignment lifts the input into the gnark witness struct.
func (in *CircuitInput) Assignment() *circuits.Withdraw {
	w := &circuits.Withdraw{
		Root:          in.Root,
		NullifierHash: in.NullifierHash,
		Recipient:     new(big.Int).SetBytes(in.Recipient.Bytes()),
		Relayer:       new(big.Int).SetBytes(in.Relayer.Bytes()),
		Fee:           in.Fee,
		Refund:        in.Refund,
		Nullifier:     in.Nullifier,
		Secret:        in.Secret,
	}
	for i := 0; i < merkle.Height; i++ {
		w.PathElements[i] = in.PathElements[i]
		w.PathBits[i] = in.PathBits[i]
	}
	return w
}

// LedgerArgs renders the public signals as the verifier contract's
// call arguments: fixed-width 0x-hex, byte widths 32/32/20/20/32/32.
// Widths are protocol-fixed; a mismatch is a hard caller error.
func (in *CircuitInput) LedgerArgs() [6]string {
	return [6]string{
		word32(in.Root),
		word32(in.NullifierHash),
		hexutil.Encode(in.Recipient.Bytes()),
		hexutil.Encode(in.Relayer.Bytes()),
		word32(in.Fee),
		word32(in.Refund),
	}
}

// WithdrawCall packages the input and a finished proof for direct
// submission through the ledger interface.
func (in *CircuitInput) WithdrawCall(p *Proof) *chain.WithdrawCall {
	call := &chain.WithdrawCall{
		Proof:     p.Calldata,
		Recipient: in.Recipient,
		Relayer:   in.Relayer,
		Fee:       new(big.Int).Set(in.Fee),
		Refund:    new(big.Int).Set(in.Refund),
	}
	in.Root.FillBytes(call.Root[:])
	in.NullifierHash.FillBytes(call.NullifierHash[:])
	return call
}

func word32(x *big.Int) string {
	var b [32]byte
	x.FillBytes(b[:])
	return hexutil.Encode(b[:])
}
