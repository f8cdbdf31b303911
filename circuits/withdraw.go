package circuits

import (
	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

func Curve() ecc.ID { return ecc.BN254 }

// TreeHeight must equal the accumulator height; roots diverge otherwise
// and every proof is rejected by the verifier.
const TreeHeight = 20

// Withdraw proves knowledge of a (nullifier, secret) opening whose
// commitment sits in the tree under Root, and binds the withdrawal
// parameters into the statement so a relayer cannot redirect funds.
type Withdraw struct {
	Root          frontend.Variable `gnark:",public"`
	NullifierHash frontend.Variable `gnark:",public"`
	Recipient     frontend.Variable `gnark:",public"`
	Relayer       frontend.Variable `gnark:",public"`
	Fee           frontend.Variable `gnark:",public"`
	Refund        frontend.Variable `gnark:",public"`

	Nullifier    frontend.Variable
	Secret       frontend.Variable
	PathElements [TreeHeight]frontend.Variable
	// PathBits[i] is the side the current node occupies at level i:
	// 0 = left child, 1 = right child.
	PathBits [TreeHeight]frontend.Variable
}

func (c *Withdraw) Define(api frontend.API) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	h.Write(c.Nullifier)
	api.AssertIsEqual(h.Sum(), c.NullifierHash)

	h.Reset()
	h.Write(c.Nullifier, c.Secret)
	cur := h.Sum()

	for i := 0; i < TreeHeight; i++ {
		api.AssertIsBoolean(c.PathBits[i])
		left := api.Select(c.PathBits[i], c.PathElements[i], cur)
		right := api.Select(c.PathBits[i], cur, c.PathElements[i])
		h.Reset()
		h.Write(left, right)
		cur = h.Sum()
	}
	api.AssertIsEqual(cur, c.Root)

	// Range-bind the remaining public inputs: addresses are 160 bits,
	// amounts fit a uint248 so they stay below the field modulus.
	api.ToBinary(c.Recipient, 160)
	api.ToBinary(c.Relayer, 160)
	api.ToBinary(c.Fee, 248)
	api.ToBinary(c.Refund, 248)

	return nil
}
