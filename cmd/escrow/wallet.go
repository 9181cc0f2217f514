package main

import (
	"errors"
	"strings"

	"github.com/tdex-network/escrowd/pkg/wallet"
	"github.com/urfave/cli/v2"
)

var networkFlag = cli.StringFlag{
	Name:  "network",
	Usage: "the litecoin network, either mainnet or testnet",
	Value: wallet.NetworkMainnet,
}

var genwallet = cli.Command{
	Name:  "genwallet",
	Usage: "generate an escrow wallet offline",
	Flags: []cli.Flag{
		&networkFlag,
		&cli.IntFlag{
			Name:  "entropy",
			Usage: "mnemonic entropy size in bits, multiple of 32 in range [128,256]",
			Value: 128,
		},
	},
	Action: genWalletAction,
}

var recoverwallet = cli.Command{
	Name:  "recoverwallet",
	Usage: "derive the escrow address and private key from a mnemonic",
	Flags: []cli.Flag{
		&networkFlag,
		&cli.StringFlag{
			Name:     "mnemonic",
			Usage:    "the space separated mnemonic of the wallet",
			Required: true,
		},
	},
	Action: recoverWalletAction,
}

func genWalletAction(ctx *cli.Context) error {
	net, err := wallet.NetworkByName(ctx.String("network"))
	if err != nil {
		return err
	}

	w, err := wallet.NewWallet(wallet.NewWalletOpts{
		EntropySize: ctx.Int("entropy"),
		Network:     net,
	})
	if err != nil {
		return err
	}

	return printWallet(w)
}

func recoverWalletAction(ctx *cli.Context) error {
	net, err := wallet.NetworkByName(ctx.String("network"))
	if err != nil {
		return err
	}

	mnemonic := strings.Fields(ctx.String("mnemonic"))
	if len(mnemonic) == 0 {
		return errors.New("mnemonic must not be empty")
	}

	w, err := wallet.NewWalletFromMnemonic(wallet.NewWalletFromMnemonicOpts{
		Mnemonic: mnemonic,
		Network:  net,
	})
	if err != nil {
		return err
	}

	return printWallet(w)
}

func printWallet(w *wallet.Wallet) error {
	mnemonic, err := w.Mnemonic()
	if err != nil {
		return err
	}
	key, err := w.DeriveEscrowKey()
	if err != nil {
		return err
	}

	printRespJSON(map[string]string{
		"mnemonic":        strings.Join(mnemonic, " "),
		"address":         key.Address,
		"private_key":     key.PrivateKeyWIF,
		"derivation_path": key.DerivationPath,
	})
	return nil
}
