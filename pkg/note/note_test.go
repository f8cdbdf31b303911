package note

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoteRoundTrip(t *testing.T) {
	d, err := New(big.NewInt(12345), big.NewInt(67890))
	require.NoError(t, err)

	encoded := d.Note()
	require.Len(t, encoded, 2+2*PreimageBytes)
	require.True(t, strings.HasPrefix(encoded, "0x"))

	back, err := DecodeNote(encoded)
	require.NoError(t, err)
	assert.True(t, back.Commitment.Equal(&d.Commitment))
	assert.True(t, back.NullifierHash.Equal(&d.NullifierHash))
	assert.Zero(t, back.Nullifier.Cmp(d.Nullifier))
	assert.Zero(t, back.Secret.Cmp(d.Secret))
}

func TestDeterministicDerivation(t *testing.T) {
	a, err := New(big.NewInt(7), big.NewInt(11))
	require.NoError(t, err)
	b, err := New(big.NewInt(7), big.NewInt(11))
	require.NoError(t, err)
	assert.True(t, a.Commitment.Equal(&b.Commitment))

	c, err := New(big.NewInt(7), big.NewInt(12))
	require.NoError(t, err)
	assert.False(t, a.Commitment.Equal(&c.Commitment))
	// nullifier hash ignores the secret
	assert.True(t, a.NullifierHash.Equal(&c.NullifierHash))
}

func TestDecodeNoteRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"missing prefix": strings.Repeat("ab", PreimageBytes),
		"too short":      "0x" + strings.Repeat("ab", PreimageBytes-1),
		"too long":       "0x" + strings.Repeat("ab", PreimageBytes+1),
		"bad charset":    "0x" + strings.Repeat("zz", PreimageBytes),
		"empty":          "",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeNote(in)
			assert.ErrorIs(t, err, ErrMalformedNote)
		})
	}
}

func TestRandomDepositsDiffer(t *testing.T) {
	a, err := Random()
	require.NoError(t, err)
	b, err := Random()
	require.NoError(t, err)
	assert.False(t, a.Commitment.Equal(&b.Commitment))
	assert.Less(t, a.Nullifier.BitLen(), 8*ScalarBytes+1)
	assert.Less(t, a.Secret.BitLen(), 8*ScalarBytes+1)
}

func TestNewRejectsOversizedScalars(t *testing.T) {
	big249 := new(big.Int).Lsh(big.NewInt(1), 248)
	_, err := New(big249, big.NewInt(1))
	assert.Error(t, err)
	_, err = New(big.NewInt(1), big249)
	assert.Error(t, err)
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	assert.Equal(t, byte(0x11), addr[0])

	for _, bad := range []string{
		"1111111111111111111111111111111111111111",
		"0x11111111111111111111111111111111111111",
		"0x11111111111111111111111111111111111111zz",
		"",
	} {
		_, err := ParseAddress(bad)
		assert.ErrorIs(t, err, ErrMalformedAddress, bad)
	}
}

func TestHashBytesRejectsBadLength(t *testing.T) {
	_, err := HashBytes(make([]byte, ScalarBytes+1))
	assert.Error(t, err)
	_, err = HashBytes(nil)
	assert.Error(t, err)
}

func TestPreimageLayout(t *testing.T) {
	d, err := New(big.NewInt(0x0102), big.NewInt(0x0304))
	require.NoError(t, err)
	// little-endian scalars: low bytes first
	assert.Equal(t, byte(0x02), d.Preimage[0])
	assert.Equal(t, byte(0x01), d.Preimage[1])
	assert.Equal(t, byte(0x04), d.Preimage[ScalarBytes])
	assert.Equal(t, byte(0x03), d.Preimage[ScalarBytes+1])
}
