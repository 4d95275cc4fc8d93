package vault_protocol

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/gagliardetto/solana-go"
)

// pdaMarker is the domain separator the runtime appends when hashing
// program address candidates.
var pdaMarker = []byte("ProgramDerivedAddress")

const maxSeedLen = 32

// FindProgramAddress searches bump values from 255 down to 0 and returns
// the first candidate that is not a valid ed25519 curve point, together
// with the bump that produced it. Seed order is significant: the on-chain
// program derives the same address from the same ordered seeds, so a
// reordered seed list is a different (and useless) address.
func FindProgramAddress(seeds [][]byte, programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	for _, seed := range seeds {
		if len(seed) > maxSeedLen {
			return solana.PublicKey{}, 0, fmt.Errorf("seed exceeds %d bytes", maxSeedLen)
		}
	}

	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{uint8(bump)})
		h.Write(programID[:])
		h.Write(pdaMarker)

		var candidate solana.PublicKey
		copy(candidate[:], h.Sum(nil))

		if !isOnCurve(candidate[:]) {
			return candidate, uint8(bump), nil
		}
	}

	// Exhausting all 256 bumps means the seed material collides with the
	// curve-valid output space. That is a design error, not a retryable
	// runtime condition.
	return solana.PublicKey{}, 0, ErrNoViableBump
}

// isOnCurve reports whether b decompresses to a valid ed25519 point. A
// program address must be off-curve so no private key can ever sign for it.
func isOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// epochSeed returns the 8-byte little-endian encoding of an epoch counter,
// as used in the boost distributor and claim bitmap seed lists.
func epochSeed(epoch uint64) []byte {
	seed := make([]byte, 8)
	binary.LittleEndian.PutUint64(seed, epoch)
	return seed
}

// GetVaultAddress derives the vault PDA for a (usdc mint, admin) pair.
func GetVaultAddress(usdcMint, admin solana.PublicKey) (solana.PublicKey, uint8, error) {
	return FindProgramAddress(
		[][]byte{
			SeedVault,
			usdcMint.Bytes(),
			admin.Bytes(),
		},
		ProgramID,
	)
}

// GetVaultAuthorityAddress derives the authority PDA that signs token
// transfers on behalf of a vault.
func GetVaultAuthorityAddress(vault solana.PublicKey) (solana.PublicKey, uint8, error) {
	return FindProgramAddress(
		[][]byte{
			SeedVaultAuth,
			vault.Bytes(),
		},
		ProgramID,
	)
}

// GetBoostDistributorAddress derives the per-epoch boost distributor PDA.
func GetBoostDistributorAddress(vault solana.PublicKey, epoch uint64) (solana.PublicKey, uint8, error) {
	return FindProgramAddress(
		[][]byte{
			SeedBoost,
			vault.Bytes(),
			epochSeed(epoch),
		},
		ProgramID,
	)
}

// GetClaimBitmapAddress derives the per-epoch claim bitmap PDA.
func GetClaimBitmapAddress(vault solana.PublicKey, epoch uint64) (solana.PublicKey, uint8, error) {
	return FindProgramAddress(
		[][]byte{
			SeedClaims,
			vault.Bytes(),
			epochSeed(epoch),
		},
		ProgramID,
	)
}
