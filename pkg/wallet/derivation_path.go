package wallet

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

const (
	// MaxHardenedValue is the max value for hardened indexes of BIP32
	// derivation paths
	MaxHardenedValue = math.MaxUint32 - hdkeychain.HardenedKeyStart

	purposeNativeSegwit = 84
)

// DerivationPath is the internal representation of a hierarchical
// deterministic wallet path
type DerivationPath []uint32

// EscrowDerivationPath returns the fixed path m/84'/coin'/0'/0/0 at which
// every escrow wallet derives its one and only key.
func EscrowDerivationPath(net *chaincfg.Params) DerivationPath {
	return DerivationPath{
		hdkeychain.HardenedKeyStart + purposeNativeSegwit,
		hdkeychain.HardenedKeyStart + net.HDCoinType,
		hdkeychain.HardenedKeyStart + 0,
		0,
		0,
	}
}

// ParseDerivationPath converts a derivation path string to the
// internal binary representation
func ParseDerivationPath(strPath string) (DerivationPath, error) {
	var path DerivationPath

	elems := strings.Split(strPath, "/")
	switch {
	case strPath == "":
		return nil, ErrNullDerivationPath
	case containsEmptyString(elems):
		return nil, ErrMalformedDerivationPath
	case len(elems) < 2:
		return nil, ErrMalformedDerivationPath
	default:
		if strings.TrimSpace(elems[0]) == "m" {
			elems = elems[1:]
		}
	}

	for _, elem := range elems {
		elem = strings.TrimSpace(elem)
		var value uint32

		if strings.HasSuffix(elem, "'") {
			value = hdkeychain.HardenedKeyStart
			elem = strings.TrimSpace(strings.TrimSuffix(elem, "'"))
		}

		bigval, ok := new(big.Int).SetString(elem, 0)
		if !ok {
			return nil, fmt.Errorf("invalid elem '%s' in path", elem)
		}

		max := math.MaxUint32 - value
		if bigval.Sign() < 0 || bigval.Cmp(big.NewInt(int64(max))) > 0 {
			if value == 0 {
				return nil, fmt.Errorf("elem %v must be in range [0, %d]", bigval, max)
			}
			return nil, fmt.Errorf("elem %v must be in hardened range [0, %d]", bigval, max)
		}
		value += uint32(bigval.Uint64())

		path = append(path, value)
	}

	return path, nil
}

// String converts a binary derivation path to its canonical representation
func (path DerivationPath) String() string {
	if len(path) <= 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("m")
	for _, component := range path {
		hardened := component >= hdkeychain.HardenedKeyStart
		if hardened {
			component -= hdkeychain.HardenedKeyStart
		}
		fmt.Fprintf(&b, "/%d", component)
		if hardened {
			b.WriteString("'")
		}
	}
	return b.String()
}

func containsEmptyString(composedPath []string) bool {
	for _, s := range composedPath {
		if s == "" {
			return true
		}
	}
	return false
}
