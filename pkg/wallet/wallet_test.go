package wallet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var testMnemonic = strings.Split(
	"abandon abandon abandon abandon abandon abandon "+
		"abandon abandon abandon abandon abandon about", " ",
)

func TestNewWallet(t *testing.T) {
	w, err := NewWallet(NewWalletOpts{Network: LitecoinMainNetParams})
	require.NoError(t, err)

	mnemonic, err := w.Mnemonic()
	require.NoError(t, err)
	require.Len(t, mnemonic, 12)
	require.True(t, IsMnemonicValid(mnemonic))

	key, err := w.DeriveEscrowKey()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(key.Address, "ltc1q"))
	require.True(t, IsValidAddress(key.Address, LitecoinMainNetParams))
	require.Equal(t, "m/84'/2'/0'/0/0", key.DerivationPath)
}

func TestFailingNewWallet(t *testing.T) {
	tests := []struct {
		name string
		opts NewWalletOpts
		err  error
	}{
		{"missing network", NewWalletOpts{}, ErrNullNetwork},
		{
			"invalid entropy",
			NewWalletOpts{EntropySize: 100, Network: LitecoinMainNetParams},
			ErrInvalidEntropySize,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWallet(tt.opts)
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestNewWalletFromMnemonic(t *testing.T) {
	w1, err := NewWalletFromMnemonic(NewWalletFromMnemonicOpts{
		Mnemonic: testMnemonic,
		Network:  LitecoinMainNetParams,
	})
	require.NoError(t, err)
	w2, err := NewWalletFromMnemonic(NewWalletFromMnemonicOpts{
		Mnemonic: testMnemonic,
		Network:  LitecoinMainNetParams,
	})
	require.NoError(t, err)

	k1, err := w1.DeriveEscrowKey()
	require.NoError(t, err)
	k2, err := w2.DeriveEscrowKey()
	require.NoError(t, err)
	require.Equal(t, k1, k2)

	_, err = NewWalletFromMnemonic(NewWalletFromMnemonicOpts{
		Mnemonic: []string{"not", "a", "mnemonic"},
		Network:  LitecoinMainNetParams,
	})
	require.ErrorIs(t, err, ErrInvalidMnemonic)
}

func TestWalletsNeverShareKeys(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 20; i++ {
		w, err := NewWallet(NewWalletOpts{Network: LitecoinMainNetParams})
		require.NoError(t, err)
		key, err := w.DeriveEscrowKey()
		require.NoError(t, err)

		_, ok := seen[key.Address]
		require.False(t, ok)
		seen[key.Address] = struct{}{}
	}
}

func TestTestnetWallet(t *testing.T) {
	w, err := NewWalletFromMnemonic(NewWalletFromMnemonicOpts{
		Mnemonic: testMnemonic,
		Network:  LitecoinTestNetParams,
	})
	require.NoError(t, err)

	key, err := w.DeriveEscrowKey()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(key.Address, "tltc1q"))
	require.Equal(t, "m/84'/1'/0'/0/0", key.DerivationPath)
	require.True(t, IsValidAddress(key.Address, LitecoinTestNetParams))
	require.False(t, IsValidAddress(key.Address, LitecoinMainNetParams))

	prvkey, err := DecodeWIF(key.PrivateKeyWIF, LitecoinTestNetParams)
	require.NoError(t, err)
	require.NotNil(t, prvkey)

	_, err = DecodeWIF(key.PrivateKeyWIF, LitecoinMainNetParams)
	require.ErrorIs(t, err, ErrInvalidWIF)
}

func TestIsValidAddress(t *testing.T) {
	tests := []struct {
		name string
		addr string
	}{
		{"empty", ""},
		{"garbage", "not-an-address"},
		{"bitcoin segwit", "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"},
		{"bitcoin legacy", "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.False(t, IsValidAddress(tt.addr, LitecoinMainNetParams))
		})
	}
}

func TestNetworkByName(t *testing.T) {
	net, err := NetworkByName(NetworkMainnet)
	require.NoError(t, err)
	require.Equal(t, "ltc", net.Bech32HRPSegwit)

	net, err = NetworkByName(NetworkTestnet)
	require.NoError(t, err)
	require.Equal(t, "tltc", net.Bech32HRPSegwit)

	_, err = NetworkByName("regtest")
	require.ErrorIs(t, err, ErrUnknownNetwork)
}
