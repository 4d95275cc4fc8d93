package vault_protocol

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAccount_VaultState(t *testing.T) {
	admin := newTestKey(t)
	operator := newTestKey(t)
	usdcMint := newTestKey(t)
	shareMint := newTestKey(t)
	vaultPda := newTestKey(t)

	data := make([]byte, VaultStateSize)
	copy(data[0:], admin.Bytes())
	copy(data[32:], operator.Bytes())
	copy(data[64:], usdcMint.Bytes())
	copy(data[96:], shareMint.Bytes())
	copy(data[128:], vaultPda.Bytes())
	data[160] = 254 // vault_bump, then 7 bytes padding
	binary.LittleEndian.PutUint64(data[168:], 1_000_000)  // total_shares lo
	binary.LittleEndian.PutUint64(data[184:], 2_000_000)  // pps lo
	binary.LittleEndian.PutUint64(data[192:], 3)          // pps hi
	binary.LittleEndian.PutUint64(data[200:], 55_555)     // buffered_base
	binary.LittleEndian.PutUint64(data[208:], 12_345_678) // last_settle_slot

	st, err := ParseAccount_VaultState(data)
	require.NoError(t, err)

	assert.Equal(t, admin, st.Admin)
	assert.Equal(t, operator, st.Operator)
	assert.Equal(t, usdcMint, st.UsdcMint)
	assert.Equal(t, shareMint, st.ShareMint)
	assert.Equal(t, vaultPda, st.VaultPda)
	assert.Equal(t, uint8(254), st.VaultBump)
	assert.Equal(t, uint64(1_000_000), st.TotalShares.Lo)
	assert.Equal(t, uint64(0), st.TotalShares.Hi)
	assert.Equal(t, uint64(2_000_000), st.Pps.Lo)
	assert.Equal(t, uint64(3), st.Pps.Hi)
	assert.Equal(t, uint64(55_555), st.BufferedBase)
	assert.Equal(t, uint64(12_345_678), st.LastSettleSlot)
}

func TestParseAccount_VaultState_TooShort(t *testing.T) {
	_, err := ParseAccount_VaultState(make([]byte, VaultStateSize-1))
	assert.ErrorIs(t, err, ErrInvalidAccountData)

	_, err = ParseAccount_VaultState(nil)
	assert.ErrorIs(t, err, ErrInvalidAccountData)
}

func TestParseAccount_BoostDistributor(t *testing.T) {
	var root Hash
	for i := range root {
		root[i] = byte(0xA0 + i)
	}

	data := make([]byte, BoostDistributorSize)
	binary.LittleEndian.PutUint64(data[0:], 9) // epoch
	copy(data[8:], root[:])
	binary.LittleEndian.PutUint64(data[40:], 77)      // total_weight lo
	binary.LittleEndian.PutUint64(data[48:], 1)       // total_weight hi
	binary.LittleEndian.PutUint64(data[56:], 500_000) // boost_total, then padding

	bd, err := ParseAccount_BoostDistributor(data)
	require.NoError(t, err)

	assert.Equal(t, uint64(9), bd.Epoch)
	assert.Equal(t, root, bd.Root)
	assert.Equal(t, uint64(77), bd.TotalWeight.Lo)
	assert.Equal(t, uint64(1), bd.TotalWeight.Hi)
	assert.Equal(t, uint64(500_000), bd.BoostTotal)
}

func TestParseAccount_BoostDistributor_TooShort(t *testing.T) {
	_, err := ParseAccount_BoostDistributor(make([]byte, BoostDistributorSize-1))
	assert.ErrorIs(t, err, ErrInvalidAccountData)
}

func TestClaimBitmap_IsClaimed(t *testing.T) {
	data := make([]byte, ClaimBitmapSize)
	data[0] = 0b0000_0101  // indices 0 and 2
	data[31] = 0b1000_0000 // index 255

	bm, err := ParseAccount_ClaimBitmap(data)
	require.NoError(t, err)

	assert.True(t, bm.IsClaimed(0))
	assert.False(t, bm.IsClaimed(1))
	assert.True(t, bm.IsClaimed(2))
	assert.False(t, bm.IsClaimed(3))
	assert.True(t, bm.IsClaimed(255))
	assert.False(t, bm.IsClaimed(254))
	// Out of the bitmap's range is simply unclaimed.
	assert.False(t, bm.IsClaimed(256))
	assert.False(t, bm.IsClaimed(1<<20))
}

func TestParseAccount_ClaimBitmap_TooShort(t *testing.T) {
	_, err := ParseAccount_ClaimBitmap(make([]byte, ClaimBitmapSize-1))
	assert.ErrorIs(t, err, ErrInvalidAccountData)
}

func TestParseAccount_VaultState_IgnoresTrailingBytes(t *testing.T) {
	data := make([]byte, VaultStateSize+64)
	copy(data[0:], solana.MustPublicKeyFromBase58("11111111111111111111111111111111").Bytes())

	_, err := ParseAccount_VaultState(data)
	assert.NoError(t, err)
}
