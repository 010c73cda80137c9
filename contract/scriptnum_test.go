package contract

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeScriptNum(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, ""},
		{1, "01"},
		{-1, "81"},
		{16, "10"},
		{127, "7f"},
		{128, "8000"},
		{-128, "8080"},
		{255, "ff00"},
		{256, "0001"},
		{400, "9001"},
		{32767, "ff7f"},
		{32768, "008000"},
		{68590, "ee0b01"},
		{499999999, "ff64cd1d"},
	}
	for _, tt := range tests {
		got := EncodeScriptNum(tt.n)
		assert.Equal(t, tt.want, hex.EncodeToString(got), "n=%d", tt.n)

		back, err := DecodeScriptNum(got, 8)
		require.NoError(t, err, "n=%d", tt.n)
		assert.Equal(t, tt.n, back)
	}
}

func TestDecodeScriptNum_Rejects(t *testing.T) {
	tests := []struct {
		name string
		hex  string
	}{
		{"negative zero", "80"},
		{"padded zero", "00"},
		{"padded one", "0100"},
		{"padded negative", "0180"},
		{"too long", "010203040506"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := hex.DecodeString(tt.hex)
			_, err := DecodeScriptNum(b, MaxScriptNumLen)
			assert.ErrorIs(t, err, ErrInvalidScriptNum)
		})
	}
}
