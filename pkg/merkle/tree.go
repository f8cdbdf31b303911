// Package merkle implements the fixed-height append-ordered commitment
// accumulator. The tree is a derived cache: it is rebuilt from the event
// log for every query and its root must reproduce the on-chain root
// bit-for-bit, so height, zero leaf and node hash are protocol parameters
// shared with the withdrawal circuit.
package merkle

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/ethereum/go-ethereum/crypto"
)

// Height of the protocol tree. Shared with the proving circuit; a mismatch
// makes every generated proof unverifiable.
const Height = 20

// ZeroLeaf pads unfilled positions up to 2^Height.
var ZeroLeaf fr.Element

func init() {
	z := new(big.Int).SetBytes(crypto.Keccak256([]byte("shieldpool")))
	z.Mod(z, fr.Modulus())
	ZeroLeaf.SetBigInt(z)
}

var ErrIndexOutOfRange = errors.New("merkle: leaf index out of range")

// Proof is the authentication path for one leaf, ordered leaf to root.
// Bits[i] is the side the path node itself occupies at level i: 0 means it
// is a left child (sibling on the right), 1 a right child.
type Proof struct {
	Elements []fr.Element
	Bits     []uint8
}

// Tree is immutable once constructed.
type Tree struct {
	height int
	// levels[0] are the real leaves; levels[i] holds only the occupied
	// prefix, everything beyond it equals zeros[i].
	levels [][]fr.Element
	zeros  []fr.Element
}

// New builds the tree over the ordered leaves. Leaf order must match the
// ledger-assigned insertion order; the circuit's membership check is
// positional.
func New(height int, leaves []fr.Element) *Tree {
	t := &Tree{
		height: height,
		levels: make([][]fr.Element, height+1),
		zeros:  make([]fr.Element, height+1),
	}

	t.zeros[0] = ZeroLeaf
	for i := 1; i <= height; i++ {
		t.zeros[i] = hashPair(t.zeros[i-1], t.zeros[i-1])
	}

	t.levels[0] = append([]fr.Element(nil), leaves...)
	for i := 1; i <= height; i++ {
		below := t.levels[i-1]
		level := make([]fr.Element, (len(below)+1)/2)
		for k := range level {
			left := below[2*k]
			right := t.zeros[i-1]
			if 2*k+1 < len(below) {
				right = below[2*k+1]
			}
			level[k] = hashPair(left, right)
		}
		t.levels[i] = level
	}
	return t
}

// Root returns the top node. For an empty tree this is the all-zero root.
func (t *Tree) Root() fr.Element {
	if len(t.levels[t.height]) == 0 {
		return t.zeros[t.height]
	}
	return t.levels[t.height][0]
}

// Path extracts the authentication path for the leaf at index.
func (t *Tree) Path(index int) (*Proof, error) {
	if index < 0 || index >= len(t.levels[0]) {
		return nil, fmt.Errorf("%w: %d of %d leaves", ErrIndexOutOfRange, index, len(t.levels[0]))
	}
	p := &Proof{
		Elements: make([]fr.Element, t.height),
		Bits:     make([]uint8, t.height),
	}
	for i := 0; i < t.height; i++ {
		sib := index ^ 1
		if sib < len(t.levels[i]) {
			p.Elements[i] = t.levels[i][sib]
		} else {
			p.Elements[i] = t.zeros[i]
		}
		p.Bits[i] = uint8(index & 1)
		index >>= 1
	}
	return p, nil
}

// VerifyPath recombines leaf and path bottom-up and compares against root.
func VerifyPath(leaf fr.Element, p *Proof, root fr.Element) bool {
	if len(p.Elements) != len(p.Bits) {
		return false
	}
	cur := leaf
	for i := range p.Elements {
		if p.Bits[i] == 0 {
			cur = hashPair(cur, p.Elements[i])
		} else {
			cur = hashPair(p.Elements[i], cur)
		}
	}
	return cur.Equal(&root)
}

func hashPair(left, right fr.Element) fr.Element {
	h := mimc.NewMiMC()
	lb := left.Bytes()
	rb := right.Bytes()
	_, _ = h.Write(lb[:])
	_, _ = h.Write(rb[:])
	var out fr.Element
	out.SetBytes(h.Sum(nil))
	return out
}
