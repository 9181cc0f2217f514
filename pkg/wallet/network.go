package wallet

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
)

const (
	// NetworkMainnet is the name of the Litecoin main network.
	NetworkMainnet = "mainnet"
	// NetworkTestnet is the name of the Litecoin test network (testnet4).
	NetworkTestnet = "testnet"
)

var (
	// LitecoinMainNetParams are the btcd chain params describing Litecoin
	// mainnet addresses and extended keys.
	LitecoinMainNetParams = newLitecoinParams(
		"litecoin", wire.BitcoinNet(0xdbb6c0fb), "ltc", 0x30, 0x32, 0xb0, 2,
	)
	// LitecoinTestNetParams are the btcd chain params describing Litecoin
	// testnet4 addresses and extended keys.
	LitecoinTestNetParams = newLitecoinParams(
		"litecoin-testnet", wire.BitcoinNet(0xf1c8d2fd), "tltc", 0x6f, 0x3a, 0xef, 1,
	)

	registerOnce sync.Once
)

// NetworkByName returns the chain params for the given network name. The
// params are registered with btcd the first time this is called, so that
// bech32 addresses with the Litecoin hrp can be decoded.
func NetworkByName(name string) (*chaincfg.Params, error) {
	registerNetworks()

	switch name {
	case NetworkMainnet:
		return LitecoinMainNetParams, nil
	case NetworkTestnet:
		return LitecoinTestNetParams, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, name)
	}
}

func registerNetworks() {
	registerOnce.Do(func() {
		// ErrDuplicateNet is the only possible error and means that someone
		// else registered the very same params already.
		_ = chaincfg.Register(LitecoinMainNetParams)
		_ = chaincfg.Register(LitecoinTestNetParams)
	})
}

func newLitecoinParams(
	name string, net wire.BitcoinNet, hrp string,
	pubKeyHashID, scriptHashID, privKeyID byte, coinType uint32,
) *chaincfg.Params {
	params := chaincfg.MainNetParams
	if coinType != 2 {
		params = chaincfg.TestNet3Params
	}
	params.Name = name
	params.Net = net
	params.Bech32HRPSegwit = hrp
	params.PubKeyHashAddrID = pubKeyHashID
	params.ScriptHashAddrID = scriptHashID
	params.PrivateKeyID = privKeyID
	params.HDCoinType = coinType
	return &params
}
