package hdwallet_test

import (
	"context"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
	hdwallet "github.com/tdex-network/escrowd/internal/infrastructure/hd-wallet"
	"github.com/tdex-network/escrowd/pkg/wallet"
)

func TestProvision(t *testing.T) {
	tests := []struct {
		network        string
		expectedPrefix string
		expectedPath   string
	}{
		{wallet.NetworkMainnet, "ltc1q", "m/84'/2'/0'/0/0"},
		{wallet.NetworkTestnet, "tltc1q", "m/84'/1'/0'/0/0"},
	}

	for _, tt := range tests {
		t.Run(tt.network, func(t *testing.T) {
			svc, err := hdwallet.NewService(tt.network, 0)
			require.NoError(t, err)
			require.Equal(t, tt.network, svc.Network())

			addresses := make(map[string]struct{})
			for i := 0; i < 5; i++ {
				bundle, err := svc.Provision(context.Background())
				require.NoError(t, err)
				require.True(t, strings.HasPrefix(bundle.Address, tt.expectedPrefix))
				require.True(t, svc.IsValidAddress(bundle.Address))
				require.Equal(t, tt.expectedPath, bundle.DerivationPath)
				require.Len(t, strings.Fields(bundle.Mnemonic), 12)

				key, err := svc.PrivateKey(bundle.PrivateKey)
				require.NoError(t, err)
				require.NotNil(t, key)

				restored, err := wallet.NewWalletFromMnemonic(wallet.NewWalletFromMnemonicOpts{
					Mnemonic: strings.Fields(bundle.Mnemonic),
					Network:  mustNetwork(t, tt.network),
				})
				require.NoError(t, err)
				restoredKey, err := restored.DeriveEscrowKey()
				require.NoError(t, err)
				require.Equal(t, bundle.Address, restoredKey.Address)

				_, ok := addresses[bundle.Address]
				require.False(t, ok)
				addresses[bundle.Address] = struct{}{}
			}
		})
	}
}

func TestFailingNewService(t *testing.T) {
	_, err := hdwallet.NewService("regtest", 0)
	require.ErrorIs(t, err, wallet.ErrUnknownNetwork)

	_, err = hdwallet.NewService(wallet.NetworkMainnet, 100)
	require.ErrorIs(t, err, wallet.ErrInvalidEntropySize)
}

func TestIsValidAddress(t *testing.T) {
	svc, err := hdwallet.NewService(wallet.NetworkMainnet, 0)
	require.NoError(t, err)

	require.False(t, svc.IsValidAddress(""))
	require.False(t, svc.IsValidAddress("bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"))

	_, err = svc.PrivateKey("not-a-wif")
	require.Error(t, err)
}

func mustNetwork(t *testing.T, name string) *chaincfg.Params {
	net, err := wallet.NetworkByName(name)
	require.NoError(t, err)
	return net
}
