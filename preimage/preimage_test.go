package preimage

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitIsDoubleSHA256(t *testing.T) {
	p := New()
	first := sha256.Sum256(p[:])
	want := sha256.Sum256(first[:])

	h := Commit(p)
	assert.Equal(t, want[:], h[:])
	assert.Equal(t, h, p.Hash())
}

func TestNewIsRandom(t *testing.T) {
	a, b := New(), New()
	assert.NotEqual(t, a, b)
}

func TestVerify(t *testing.T) {
	p := New()
	h := Commit(p)

	require.NoError(t, p.Verify(h[:]))

	other := New()
	assert.ErrorIs(t, other.Verify(h[:]), ErrCommitmentMismatch)
	assert.ErrorIs(t, p.Verify(h[:31]), ErrInvalidCommitment)
}

func TestFromBytes(t *testing.T) {
	_, err := FromBytes(make([]byte, 31))
	assert.ErrorIs(t, err, ErrInvalidPreimage)

	raw := make([]byte, Size)
	raw[0] = 0xaa
	p, err := FromBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, p.Bytes())

	raw[0] = 0x00
	assert.Equal(t, byte(0xaa), p[0], "FromBytes must copy")
}

func TestFromHexRoundTrip(t *testing.T) {
	p := New()
	got, err := FromHex(p.String())
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = FromHex("zz")
	assert.ErrorIs(t, err, ErrInvalidPreimage)
}

func TestDerive(t *testing.T) {
	seed := []byte("loan-7a3f")

	a, err := Derive(seed, NameL)
	require.NoError(t, err)
	again, err := Derive(seed, NameL)
	require.NoError(t, err)
	assert.Equal(t, a, again)

	b, err := Derive(seed, NameM)
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "labels must separate derived secrets")

	_, err = Derive(nil, NameL)
	assert.ErrorIs(t, err, ErrEmptySeed)
}

func TestHashString(t *testing.T) {
	p := New()
	h := Commit(p)
	decoded, err := hex.DecodeString(h.String())
	require.NoError(t, err)
	assert.Equal(t, h.Bytes(), decoded)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	l, err := r.Generate(NameL)
	require.NoError(t, err)
	m, err := r.Generate(NameM)
	require.NoError(t, err)
	assert.NotEqual(t, l, m)

	got, err := r.Get(NameL)
	require.NoError(t, err)
	assert.Equal(t, l, got)

	c, err := r.Commitment(NameM)
	require.NoError(t, err)
	assert.Equal(t, Commit(m), c)

	_, err = r.Generate(NameL)
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = r.Get("X")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Commitment("X")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []string{NameL, NameM}, r.Names())
}
