package wallet

const (
	P2PK = iota
	P2PKH
	P2SH_P2WPKH
	P2WPKH
	P2WSH
	P2TR
)

var (
	scriptSigSizeByScriptType = map[int]int{
		P2PK:        73,  // len + sig
		P2PKH:       107, // len + sig + len + pubkey
		P2SH_P2WPKH: 23,  // len + p2wpkh script
		P2WPKH:      0,
		P2WSH:       0,
		P2TR:        0,
	}
	scriptPubKeySizeByScriptType = map[int]int{
		P2PK:        35, // pubkey compressed + opcode
		P2PKH:       25, // opcodes (3) + hash(pubkey) + opcodes (2)
		P2SH_P2WPKH: 23, // opcode + hash(script) + opcode
		P2WPKH:      22, // opcodes (2) + hash(pubkey)
		P2WSH:       34, // opcodes (2) + hash(script)
		P2TR:        34, // opcodes (2) + x-only pubkey
	}
	witnessSizeByScriptType = map[int]int{
		P2SH_P2WPKH: 108, // items count + len + sig + len + pubkey
		P2WPKH:      108,
		P2TR:        66, // items count + len + schnorr sig
	}
)

// EstimateTxSize makes an estimation of the virtual size of a transaction
// given the script types of its inputs and outputs. Signatures are always
// accounted at their max DER length, so the estimation never falls short.
func EstimateTxSize(inScriptTypes, outScriptTypes []int) int {
	baseSize := calcTxBaseSize(inScriptTypes, outScriptTypes)
	witnessSize := calcTxWitnessSize(inScriptTypes)

	totalSize := baseSize + witnessSize
	weight := baseSize*3 + totalSize
	return (weight + 3) / 4
}

// EstimateP2WPKHTxSize is a shortcut for estimating the size of a tx
// spending numIns P2WPKH inputs to numOuts P2WPKH outputs.
func EstimateP2WPKHTxSize(numIns, numOuts int) int {
	ins := make([]int, numIns)
	outs := make([]int, numOuts)
	for i := range ins {
		ins[i] = P2WPKH
	}
	for i := range outs {
		outs[i] = P2WPKH
	}
	return EstimateTxSize(ins, outs)
}

func calcTxBaseSize(inScriptTypes, outScriptTypes []int) int {
	// hash + index + sequence
	inBaseSize := 32 + 4 + 4
	insSize := 0
	for _, scriptType := range inScriptTypes {
		scriptSize := scriptSigSizeByScriptType[scriptType]
		insSize += inBaseSize + varIntSerializeSize(uint64(scriptSize)) + scriptSize
	}

	// value
	outBaseSize := 8
	outsSize := 0
	for _, scriptType := range outScriptTypes {
		scriptSize := scriptPubKeySizeByScriptType[scriptType]
		outsSize += outBaseSize + varIntSerializeSize(uint64(scriptSize)) + scriptSize
	}

	// version + locktime
	return 4 + 4 +
		varIntSerializeSize(uint64(len(inScriptTypes))) +
		varIntSerializeSize(uint64(len(outScriptTypes))) +
		insSize + outsSize
}

func calcTxWitnessSize(inScriptTypes []int) int {
	insSize := 0
	hasWitness := false
	for _, scriptType := range inScriptTypes {
		size, ok := witnessSizeByScriptType[scriptType]
		if ok {
			hasWitness = true
			insSize += size
			continue
		}
		// empty witness stack for legacy inputs
		insSize++
	}
	if !hasWitness {
		return 0
	}
	// marker + flag
	return 2 + insSize
}

func varIntSerializeSize(val uint64) int {
	switch {
	case val < 0xfd:
		return 1
	case val <= 0xffff:
		return 3
	case val <= 0xffffffff:
		return 5
	default:
		return 9
	}
}
