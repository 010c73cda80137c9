package keys

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateMnemonic(t *testing.T) {
	m12, err := GenerateMnemonic(Mnemonic12Words)
	require.NoError(t, err)
	assert.Len(t, strings.Fields(m12), 12)

	m24, err := GenerateMnemonic(Mnemonic24Words)
	require.NoError(t, err)
	assert.Len(t, strings.Fields(m24), 24)

	_, err = GenerateMnemonic(64)
	assert.ErrorIs(t, err, ErrInvalidEntropy)
	assert.ErrorIs(t, err, ErrKeyMaterial)
}

func TestFromMnemonic(t *testing.T) {
	mnemonic, err := GenerateMnemonic(Mnemonic12Words)
	require.NoError(t, err)

	a, err := FromMnemonic(mnemonic, "", DefaultLenderPath)
	require.NoError(t, err)
	assert.Equal(t, DefaultLenderPath, a.Path)

	// Whitespace is normalized.
	b, err := FromMnemonic("  "+strings.ReplaceAll(mnemonic, " ", "   ")+"\n", "", DefaultLenderPath)
	require.NoError(t, err)
	assert.Equal(t, a.PubKeyBytes(), b.PubKeyBytes())

	withPass, err := FromMnemonic(mnemonic, "TREZOR", DefaultLenderPath)
	require.NoError(t, err)
	assert.NotEqual(t, a.PubKeyBytes(), withPass.PubKeyBytes())

	_, err = FromMnemonic("abandon abandon abandon", "", DefaultLenderPath)
	assert.ErrorIs(t, err, ErrInvalidMnemonic)
}
