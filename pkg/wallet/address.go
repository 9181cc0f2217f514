package wallet

import (
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// IsValidAddress returns whether the given string is a well formed address
// of the given network. This is the single validator used both for
// addresses supplied by users and for those generated by the wallet.
func IsValidAddress(addr string, net *chaincfg.Params) bool {
	_, err := decodeAddress(addr, net)
	return err == nil
}

// AddressToScript returns the output script paying to the given address.
func AddressToScript(addr string, net *chaincfg.Params) ([]byte, error) {
	decoded, err := decodeAddress(addr, net)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(decoded)
}

// DecodeWIF parses a WIF encoded private key and makes sure it belongs to
// the given network.
func DecodeWIF(wif string, net *chaincfg.Params) (*btcec.PrivateKey, error) {
	if net == nil {
		return nil, ErrNullNetwork
	}
	decoded, err := btcutil.DecodeWIF(strings.TrimSpace(wif))
	if err != nil {
		return nil, ErrInvalidWIF
	}
	if !decoded.IsForNet(net) {
		return nil, ErrInvalidWIF
	}
	return decoded.PrivKey, nil
}

// P2WPKHScript returns the native segwit output script locked to the given
// private key.
func P2WPKHScript(key *btcec.PrivateKey, net *chaincfg.Params) ([]byte, error) {
	if key == nil {
		return nil, ErrNullPrivateKey
	}
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(key.PubKey().SerializeCompressed()), net,
	)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(addr)
}

func decodeAddress(addr string, net *chaincfg.Params) (btcutil.Address, error) {
	if net == nil {
		return nil, ErrNullNetwork
	}
	registerNetworks()

	addr = strings.TrimSpace(addr)
	if len(addr) <= 0 {
		return nil, ErrInvalidAddress
	}
	decoded, err := btcutil.DecodeAddress(addr, net)
	if err != nil {
		return nil, ErrInvalidAddress
	}
	if !decoded.IsForNet(net) {
		return nil, ErrInvalidAddress
	}

	switch decoded.(type) {
	case *btcutil.AddressWitnessPubKeyHash,
		*btcutil.AddressWitnessScriptHash,
		*btcutil.AddressTaproot,
		*btcutil.AddressPubKeyHash,
		*btcutil.AddressScriptHash:
		return decoded, nil
	default:
		return nil, ErrInvalidAddress
	}
}
