package cip13

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const address = "addr1vx2fxv2umyhttkxyxp8x0dlpdt3k6cwng5pxj3jhsydzers66hrl8"

func TestParse(t *testing.T) {
	p, err := Parse(Scheme + address + "?amount=1.5")
	require.NoError(t, err)
	assert.Equal(t, address, p.Address)
	require.NotNil(t, p.Amount)
	assert.Equal(t, uint64(1_500_000), *p.Amount)
	assert.Equal(t, Scheme+address+"?amount=1.5", p.Encode())

	p, err = Parse(Scheme + address)
	require.NoError(t, err)
	assert.Nil(t, p.Amount)
	assert.Equal(t, Scheme+address, p.Encode())

	const byron = "Ae2tdPwUPEZFRbyhz3cpfC2CumGzNkFBN2L42rcUc2yjQpEkxDbkPodpMAi"
	p, err = Parse(Scheme + byron + "?amount=2")
	require.NoError(t, err)
	assert.Equal(t, byron, p.Address)
}

func TestParseRejects(t *testing.T) {
	for _, uri := range []string{
		address,
		Scheme,
		Scheme + "?amount=1",
		Scheme + "addr1notanaddress",
		Scheme + "stake1uyehkck0lajq8gr28t9uxnuvgcqrc6070x3k9r8048z8y5gh6ffgw",
		Scheme + address + "?amount=-1",
		Scheme + address + "?amount=1.0000001",
		Scheme + address + "?amount=%zz",
	} {
		_, err := Parse(uri)
		assert.Error(t, err, uri)
	}
}

func TestParseAda(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"1000", 1_000_000_000},
		{"0.000001", 1},
		{".5", 500_000},
		{"2.", 2_000_000},
		{"45000000000", 45_000_000_000_000_000},
	}
	for _, tc := range tests {
		got, err := ParseAda(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParseAda("18446744073709.551616")
	assert.Error(t, err)
	_, err = ParseAda(".")
	assert.Error(t, err)
}

func TestFormatAda(t *testing.T) {
	assert.Equal(t, "0", FormatAda(0))
	assert.Equal(t, "0.000001", FormatAda(1))
	assert.Equal(t, "12.3", FormatAda(12_300_000))
}
