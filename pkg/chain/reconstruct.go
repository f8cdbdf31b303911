package chain

import (
	"context"
	"fmt"
	"sort"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/yourorg/shieldpool/pkg/merkle"
	"github.com/yourorg/shieldpool/pkg/note"
)

// TreeProof is the reconstructed membership evidence for one deposit:
// the tree root the ledger must recognize plus the authentication path
// consumed verbatim as private circuit input.
type TreeProof struct {
	Root      fr.Element
	LeafIndex int
	Path      *merkle.Proof
}

// FetchLeaves pulls the deposit log and restores ledger insertion order.
// Sorting is mandatory: log delivery may be reordered, and the circuit's
// membership semantics are positional. Duplicate deliveries of the same
// leaf index are dropped.
func FetchLeaves(ctx context.Context, l Ledger, fromBlock uint64) ([]Leaf, error) {
	leaves, err := l.DepositLeaves(ctx, fromBlock)
	if err != nil {
		return nil, err
	}
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].Index < leaves[j].Index })
	out := leaves[:0]
	for i, lf := range leaves {
		if i > 0 && lf.Index == leaves[i-1].Index {
			continue
		}
		out = append(out, lf)
	}
	return out, nil
}

// Locate scans for the leaf carrying the target commitment. The log size
// is the practical bound; no index is persisted because the client is
// stateless by design.
func Locate(leaves []Leaf, target fr.Element) (int, error) {
	for i := range leaves {
		if leaves[i].Commitment.Equal(&target) {
			return i, nil
		}
	}
	return 0, ErrNotFound
}

// BuildProof rebuilds the accumulator from the event log, extracts the
// deposit's authentication path and cross-validates against the ledger's
// own registries. The spent check runs first so an already-consumed note
// is reported as such regardless of tree state.
func BuildProof(ctx context.Context, l Ledger, dep *note.Deposit, fromBlock uint64) (*TreeProof, error) {
	nh := dep.NullifierHash.Bytes()
	spent, err := l.IsSpent(ctx, nh)
	if err != nil {
		return nil, err
	}
	if spent {
		return nil, ErrAlreadySpent
	}

	leaves, err := FetchLeaves(ctx, l, fromBlock)
	if err != nil {
		return nil, err
	}
	for i := range leaves {
		if int(leaves[i].Index) != i {
			return nil, fmt.Errorf("%w: gap in leaf indices at %d (got %d)", ErrTreeCorrupted, i, leaves[i].Index)
		}
	}

	idx, err := Locate(leaves, dep.Commitment)
	if err != nil {
		return nil, err
	}

	values := make([]fr.Element, len(leaves))
	for i := range leaves {
		values[i] = leaves[i].Commitment
	}
	tree := merkle.New(merkle.Height, values)
	path, err := tree.Path(idx)
	if err != nil {
		return nil, err
	}
	root := tree.Root()
	if !merkle.VerifyPath(dep.Commitment, path, root) {
		return nil, fmt.Errorf("%w: extracted path does not recombine to root", ErrTreeCorrupted)
	}

	known, err := l.IsKnownRoot(ctx, root.Bytes())
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, ErrTreeCorrupted
	}

	return &TreeProof{Root: root, LeafIndex: idx, Path: path}, nil
}
