package escrow

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const vaultDerivationPrefix = "bountyvault/escrow/vault/"

// VaultAddress derives the deterministic custody address for a token symbol.
// All locked funds for that token sit under this address until released or
// refunded.
func VaultAddress(token string) [20]byte {
	hash := ethcrypto.Keccak256([]byte(vaultDerivationPrefix), []byte(token))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}
