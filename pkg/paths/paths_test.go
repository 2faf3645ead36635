package paths

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	p, err := Parse("m/1852'/1815'/0'/0/7")
	require.NoError(t, err)
	assert.Equal(t, Path{H(1852), H(1815), H(0), 0, 7}, p)
	assert.Equal(t, "m/1852'/1815'/0'/0/7", p.String())

	p, err = Parse("44h/1815h/3h")
	require.NoError(t, err)
	assert.Equal(t, "m/44'/1815'/3'", p.String())

	for _, bad := range []string{"m/x", "m/1852'/", "m/4294967295", "m/-1"} {
		_, err := Parse(bad)
		assert.ErrorIs(t, err, ErrInvalidPath, bad)
	}
}

func TestSchemas(t *testing.T) {
	tests := []struct {
		path                                     string
		payment, staking, anyStaking, msig, mint bool
	}{
		{"m/1852'/1815'/0'/0/0", true, false, false, false, false},
		{"m/44'/1815'/0'/1/1000000", true, false, false, false, false},
		{"m/44'/1815'/0'/1/1000001", false, false, false, false, false},
		{"m/1852'/1815'/101'/0/0", false, false, false, false, false},
		{"m/1852'/1815'/0'/2/0", false, true, true, false, false},
		{"m/1852'/1815'/500'/2/0", false, false, true, false, false},
		{"m/1852'/1815'/0'/2/1", false, false, false, false, false},
		{"m/1854'/1815'/0'/0/3", false, false, false, true, false},
		{"m/1854'/1815'/0'/2/0", false, false, false, true, false},
		{"m/1855'/1815'/0'", false, false, false, false, true},
		{"m/1855'/1815'/0", false, false, false, false, false},
		{"m/1852'/1815'/0'/0/0'", false, false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			p := MustParse(tt.path)
			assert.Equal(t, tt.payment, p.IsPayment(), "payment")
			assert.Equal(t, tt.staking, p.IsStaking(), "staking")
			assert.Equal(t, tt.anyStaking, p.IsStakingAnyAccount(), "staking any account")
			assert.Equal(t, tt.msig, p.IsMultisigKey(), "multisig")
			assert.Equal(t, tt.mint, p.IsMintKey(), "mint")
		})
	}
}

func TestNamespaces(t *testing.T) {
	assert.True(t, MustParse("m/44'/1815'").IsByron())
	assert.True(t, MustParse("m/1852'/1815'/0'").IsShelley())
	assert.True(t, MustParse("m/1854'/1815'").IsMultisig())
	assert.True(t, MustParse("m/1855'/1815'").IsMinting())
	assert.False(t, MustParse("m/44'/0'/0'").IsCardano())
	assert.False(t, MustParse("m/1852'").IsCardano())
}

func TestAccount(t *testing.T) {
	p := MustParse("m/1852'/1815'/4'/0/1")
	assert.Equal(t, MustParse("m/1852'/1815'/4'"), p.Account())
	assert.Nil(t, MustParse("m/1852'/1815'").Account())

	// the prefix is a copy-safe view
	acc := p.Account()
	acc = append(acc, 9)
	assert.Equal(t, uint32(0), p[3])
	assert.Len(t, acc, 4)
}
