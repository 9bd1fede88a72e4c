package addressindex

import (
	"encoding/hex"

	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
)

// scriptAddress derives the address paid by a P2PKH or P2PK locking script.
func scriptAddress(script *bscript.Script, mainnet bool) (string, bool) {
	if script == nil || len(*script) == 0 {
		return "", false
	}

	switch {
	case script.IsP2PKH():
		pkh, err := script.PublicKeyHash()
		if err != nil {
			return "", false
		}

		addr, err := bscript.NewAddressFromPublicKeyHash(pkh, mainnet)
		if err != nil {
			return "", false
		}

		return addr.AddressString, true

	case script.IsP2PK():
		parts, err := bscript.DecodeParts(*script)
		if err != nil || len(parts) != 2 {
			return "", false
		}

		return pubKeyAddress(parts[0], mainnet)
	}

	return "", false
}

func pubKeyAddress(pubKey []byte, mainnet bool) (string, bool) {
	if !isPubKey(pubKey) {
		return "", false
	}

	addr, err := bscript.NewAddressFromPublicKeyString(hex.EncodeToString(pubKey), mainnet)
	if err != nil {
		return "", false
	}

	return addr.AddressString, true
}

func isPubKey(b []byte) bool {
	switch len(b) {
	case 33:
		return b[0] == 0x02 || b[0] == 0x03
	case 65:
		return b[0] == 0x04
	default:
		return false
	}
}

func outputAddress(output *bt.Output, mainnet bool) (string, bool) {
	if output == nil {
		return "", false
	}

	return scriptAddress(output.LockingScript, mainnet)
}

// inputAddress resolves the address an input spends from. The previous locking script of
// an extended transaction is preferred; otherwise a <sig> <pubkey> unlocking script is
// decoded.
func inputAddress(input *bt.Input, mainnet bool) (string, bool) {
	if input == nil {
		return "", false
	}

	if addr, ok := scriptAddress(input.PreviousTxScript, mainnet); ok {
		return addr, true
	}

	if input.UnlockingScript == nil || len(*input.UnlockingScript) == 0 {
		return "", false
	}

	parts, err := bscript.DecodeParts(*input.UnlockingScript)
	if err != nil || len(parts) != 2 {
		return "", false
	}

	return pubKeyAddress(parts[1], mainnet)
}

// countOccurrences returns how many inputs and outputs of tx touch the address, which is
// the number of history entries the transaction produces for it.
func countOccurrences(tx *bt.Tx, address string, mainnet bool) int {
	n := 0

	for _, output := range tx.Outputs {
		if addr, ok := outputAddress(output, mainnet); ok && addr == address {
			n++
		}
	}

	if tx.IsCoinbase() {
		return n
	}

	for _, input := range tx.Inputs {
		if addr, ok := inputAddress(input, mainnet); ok && addr == address {
			n++
		}
	}

	return n
}

// addressAmounts sums the satoshis the transaction pays to and spends from the address.
func addressAmounts(tx *bt.Tx, address string, mainnet bool) (received, sent uint64) {
	for _, output := range tx.Outputs {
		if addr, ok := outputAddress(output, mainnet); ok && addr == address {
			received += output.Satoshis
		}
	}

	if tx.IsCoinbase() {
		return received, 0
	}

	for _, input := range tx.Inputs {
		if addr, ok := inputAddress(input, mainnet); ok && addr == address {
			sent += input.PreviousTxSatoshis
		}
	}

	return received, sent
}
