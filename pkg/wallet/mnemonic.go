package wallet

import (
	"strings"

	"github.com/vulpemventures/go-bip39"
)

// NewMnemonicOpts is the struct given to the NewMnemonic method
type NewMnemonicOpts struct {
	EntropySize int
}

func (o NewMnemonicOpts) validate() error {
	if o.EntropySize > 0 {
		if o.EntropySize < 128 || o.EntropySize > 256 || o.EntropySize%32 != 0 {
			return ErrInvalidEntropySize
		}
	}
	if o.EntropySize < 0 {
		return ErrInvalidEntropySize
	}
	return nil
}

// NewMnemonic returns a new random mnemonic as a list of words. Entropy
// defaults to 128 bits (12 words).
func NewMnemonic(opts NewMnemonicOpts) ([]string, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.EntropySize == 0 {
		opts.EntropySize = 128
	}

	return generateMnemonic(opts.EntropySize)
}

// IsMnemonicValid returns whether the given list of words is a valid BIP39
// mnemonic.
func IsMnemonicValid(mnemonic []string) bool {
	return isMnemonicValid(mnemonic)
}

func generateMnemonic(entropySize int) ([]string, error) {
	entropy, err := bip39.NewEntropy(entropySize)
	if err != nil {
		return nil, err
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, err
	}
	return strings.Split(mnemonic, " "), nil
}

func generateSeedFromMnemonic(mnemonic []string) []byte {
	m := strings.Join(mnemonic, " ")
	return bip39.NewSeed(m, "")
}

func isMnemonicValid(mnemonic []string) bool {
	if len(mnemonic) <= 0 {
		return false
	}
	m := strings.Join(mnemonic, " ")
	return bip39.IsMnemonicValid(m)
}
