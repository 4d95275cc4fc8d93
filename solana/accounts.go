package vault_protocol

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// On-chain account layouts. The program stores these as packed C structs
// (u128 fields are 8-byte aligned on SBF), so every field sits at a fixed
// little-endian offset.
const (
	VaultStateSize       = 216
	BoostDistributorSize = 72
	ClaimBitmapSize      = 32
)

// VaultState is the vault's root account.
type VaultState struct {
	Admin          solana.PublicKey
	Operator       solana.PublicKey
	UsdcMint       solana.PublicKey
	ShareMint      solana.PublicKey
	VaultPda       solana.PublicKey
	VaultBump      uint8
	TotalShares    bin.Uint128
	Pps            bin.Uint128
	BufferedBase   uint64
	LastSettleSlot uint64
}

func ParseAccount_VaultState(data []byte) (*VaultState, error) {
	if len(data) < VaultStateSize {
		return nil, fmt.Errorf("%w: vault state needs %d bytes, got %d", ErrInvalidAccountData, VaultStateSize, len(data))
	}

	var st VaultState
	var offset int
	getPublicKey(data, &st.Admin, &offset)
	getPublicKey(data, &st.Operator, &offset)
	getPublicKey(data, &st.UsdcMint, &offset)
	getPublicKey(data, &st.ShareMint, &offset)
	getPublicKey(data, &st.VaultPda, &offset)
	getUint8(data, &st.VaultBump, &offset)
	offset += 7 // struct padding
	getUint128(data, &st.TotalShares, &offset)
	getUint128(data, &st.Pps, &offset)
	getUint64(data, &st.BufferedBase, &offset)
	getUint64(data, &st.LastSettleSlot, &offset)
	return &st, nil
}

// BoostDistributor holds one epoch's posted Merkle root and weight total.
type BoostDistributor struct {
	Epoch       uint64
	Root        Hash
	TotalWeight bin.Uint128
	BoostTotal  uint64
}

func ParseAccount_BoostDistributor(data []byte) (*BoostDistributor, error) {
	if len(data) < BoostDistributorSize {
		return nil, fmt.Errorf("%w: boost distributor needs %d bytes, got %d", ErrInvalidAccountData, BoostDistributorSize, len(data))
	}

	var bd BoostDistributor
	var offset int
	getUint64(data, &bd.Epoch, &offset)
	getHash(data, &bd.Root, &offset)
	getUint128(data, &bd.TotalWeight, &offset)
	getUint64(data, &bd.BoostTotal, &offset)
	return &bd, nil
}

// ClaimBitmap tracks which of an epoch's 256 claim slots have been used.
type ClaimBitmap struct {
	Words [ClaimBitmapSize]byte
}

func ParseAccount_ClaimBitmap(data []byte) (*ClaimBitmap, error) {
	if len(data) < ClaimBitmapSize {
		return nil, fmt.Errorf("%w: claim bitmap needs %d bytes, got %d", ErrInvalidAccountData, ClaimBitmapSize, len(data))
	}

	var bm ClaimBitmap
	copy(bm.Words[:], data)
	return &bm, nil
}

// IsClaimed reports whether the claim slot at index has already been used.
func (bm *ClaimBitmap) IsClaimed(index uint32) bool {
	byteIdx := index / 8
	if byteIdx >= ClaimBitmapSize {
		return false
	}
	return bm.Words[byteIdx]&(1<<(index&7)) != 0
}

func getPublicKey(src []byte, dst *solana.PublicKey, offset *int) {
	copy(dst[:], src[*offset:*offset+solana.PublicKeyLength])
	*offset += solana.PublicKeyLength
}
