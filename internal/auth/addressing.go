package auth

import (
	"encoding/binary"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	marketSeed    = []byte("market")
	authoritySeed = []byte("authority")
)

// MarketID derives the stable key of the market an authority created at
// index: keccak256("market" || authority || index as little-endian u16).
func MarketID(authority string, index uint16) string {
	var idx [2]byte
	binary.LittleEndian.PutUint16(idx[:], index)
	return ethcrypto.Keccak256Hash(marketSeed, identityBytes(authority), idx[:]).Hex()
}

// MintAuthority is the identity allowed to mint daily rewards.
func MintAuthority() string {
	return ethcrypto.Keccak256Hash(authoritySeed).Hex()
}

// NormalizeAddress returns the checksummed form of a hex address and false
// when s is not one.
func NormalizeAddress(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return "", false
	}
	return common.HexToAddress(s).Hex(), true
}

func identityBytes(id string) []byte {
	if common.IsHexAddress(id) {
		return common.HexToAddress(id).Bytes()
	}
	return []byte(id)
}
