// Package note derives deposit secrets and encodes them as bearer notes.
//
// A deposit is a (nullifier, secret) pair of 31-byte little-endian scalars.
// The commitment MiMC(nullifier, secret) is what goes on chain; the
// nullifier hash MiMC(nullifier) is revealed at withdrawal time to mark the
// commitment spent. The note is the fixed-width hex encoding of the 62-byte
// preimage and is the only thing the depositor has to keep.
package note

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"regexp"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"
)

const (
	// ScalarBytes is the width of one little-endian scalar inside a note.
	ScalarBytes = 31
	// PreimageBytes is nullifier ++ secret.
	PreimageBytes = 2 * ScalarBytes
)

var (
	ErrMalformedNote    = errors.New("note: malformed note")
	ErrMalformedAddress = errors.New("note: malformed address")
)

var (
	noteRe    = regexp.MustCompile(`^0x[0-9a-fA-F]{124}$`)
	addressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// Deposit holds the full opening of one commitment. It is immutable once
// created and never leaves the client.
type Deposit struct {
	Nullifier     *big.Int
	Secret        *big.Int
	Preimage      [PreimageBytes]byte
	Commitment    fr.Element
	NullifierHash fr.Element
}

// New derives the preimage, commitment and nullifier hash from the two
// scalars. Both must fit in 31 bytes.
func New(nullifier, secret *big.Int) (*Deposit, error) {
	if nullifier.Sign() < 0 || nullifier.BitLen() > 8*ScalarBytes {
		return nil, fmt.Errorf("nullifier does not fit %d bytes", ScalarBytes)
	}
	if secret.Sign() < 0 || secret.BitLen() > 8*ScalarBytes {
		return nil, fmt.Errorf("secret does not fit %d bytes", ScalarBytes)
	}

	d := &Deposit{
		Nullifier: new(big.Int).Set(nullifier),
		Secret:    new(big.Int).Set(secret),
	}
	copy(d.Preimage[:ScalarBytes], leBytes(nullifier, ScalarBytes))
	copy(d.Preimage[ScalarBytes:], leBytes(secret, ScalarBytes))

	cm, err := HashBytes(d.Preimage[:])
	if err != nil {
		return nil, err
	}
	nh, err := HashBytes(d.Preimage[:ScalarBytes])
	if err != nil {
		return nil, err
	}
	d.Commitment = cm
	d.NullifierHash = nh
	return d, nil
}

// Random draws a fresh deposit from crypto/rand.
func Random() (*Deposit, error) {
	n, err := randomScalar(ScalarBytes)
	if err != nil {
		return nil, err
	}
	s, err := randomScalar(ScalarBytes)
	if err != nil {
		return nil, err
	}
	return New(n, s)
}

// randomScalar draws nbytes of CSPRNG material, little-endian decoded.
func randomScalar(nbytes int) (*big.Int, error) {
	buf := make([]byte, nbytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("read csprng: %w", err)
	}
	return leToBig(buf), nil
}

// DecodeNote parses a 0x-prefixed 124-hex-char note back into a Deposit.
func DecodeNote(s string) (*Deposit, error) {
	if !noteRe.MatchString(s) {
		return nil, fmt.Errorf("%w: want 0x + %d hex chars", ErrMalformedNote, 2*PreimageBytes)
	}
	raw, err := hex.DecodeString(s[2:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNote, err)
	}
	nullifier := leToBig(raw[:ScalarBytes])
	secret := leToBig(raw[ScalarBytes:])
	return New(nullifier, secret)
}

// Note returns the bearer encoding of the preimage.
func (d *Deposit) Note() string {
	return "0x" + hex.EncodeToString(d.Preimage[:])
}

// ParseAddress validates the 0x + 40 hex char address format.
func ParseAddress(s string) (common.Address, error) {
	if !addressRe.MatchString(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrMalformedAddress, s)
	}
	return common.HexToAddress(s), nil
}

func leBytes(x *big.Int, n int) []byte {
	be := make([]byte, n)
	x.FillBytes(be)
	le := make([]byte, n)
	for i := range be {
		le[i] = be[n-1-i]
	}
	return le
}

func leToBig(le []byte) *big.Int {
	be := make([]byte, len(le))
	for i := range le {
		be[i] = le[len(le)-1-i]
	}
	return new(big.Int).SetBytes(be)
}
