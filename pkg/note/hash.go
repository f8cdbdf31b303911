package note

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

// HashBytes is the protocol hash over byte strings. The input is consumed
// as consecutive 31-byte little-endian limbs so every limb is a canonical
// field element; the limbs are absorbed by MiMC over the bn254 scalar
// field. A 62-byte preimage is exactly the two note scalars, which keeps
// the native hash in agreement with the in-circuit MiMC over the same
// values.
func HashBytes(data []byte) (fr.Element, error) {
	var out fr.Element
	if len(data) == 0 || len(data)%ScalarBytes != 0 {
		return out, fmt.Errorf("hash input must be a multiple of %d bytes, got %d", ScalarBytes, len(data))
	}
	h := mimc.NewMiMC()
	for off := 0; off < len(data); off += ScalarBytes {
		var limb fr.Element
		limb.SetBigInt(leToBig(data[off : off+ScalarBytes]))
		b := limb.Bytes()
		if _, err := h.Write(b[:]); err != nil {
			return out, fmt.Errorf("mimc write: %w", err)
		}
	}
	out.SetBytes(h.Sum(nil))
	return out, nil
}
