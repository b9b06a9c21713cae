package idhash

import (
	"crypto/sha256"
	"errors"

	"filippo.io/edwards25519"

	"reflection-token-lab/internal/domain"
)

// pairSeed prefixes every pair derivation.
const pairSeed = "pair"

// ErrNoPairAddress is returned when no bump yields an off-curve address.
var ErrNoPairAddress = errors.New("no off-curve pair address found")

// DerivePairAddress derives the liquidity pair address of token and quote
// under the given exchange program, the way program-derived addresses are
// found: hash the seeds with a bump byte (255 downwards) and the program,
// and take the first hash that is not a valid ed25519 point. The result
// therefore has no private key.
//
// Tokens are ordered so that (a, b) and (b, a) derive the same pair.
func DerivePairAddress(token, quote, program domain.Address) (domain.Address, uint8, error) {
	first, second := token, quote
	if second.Less(first) {
		first, second = second, first
	}

	for bump := 255; bump > 0; bump-- {
		data := make([]byte, 0, len(pairSeed)+3*domain.AddressLength+1+len("ProgramDerivedAddress"))
		data = append(data, pairSeed...)
		data = append(data, first[:]...)
		data = append(data, second[:]...)
		data = append(data, byte(bump))
		data = append(data, program[:]...)
		data = append(data, "ProgramDerivedAddress"...)

		hash := sha256.Sum256(data)
		if !isOnCurve(hash[:]) {
			return domain.Address(hash), uint8(bump), nil
		}
	}

	return domain.ZeroAddress, 0, ErrNoPairAddress
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
