package vault_protocol

import (
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// InstructionType is the one-byte discriminant at the start of every
// instruction payload. The values are fixed for the protocol's lifetime.
type InstructionType uint8

const (
	InstructionTypeInit InstructionType = iota
	InstructionTypeDeposit
	InstructionTypeWithdraw
	InstructionTypeDonate
	InstructionTypePostRoot
	InstructionTypeClaim
)

const HashSize = 32

// Hash is a 32-byte Merkle node or root.
type Hash [HashSize]byte

const (
	InitInstructionArgsSize = 1 // decimals

	DepositInstructionArgsSize = (8 + // amount
		1) // usdc_decimals

	WithdrawInstructionArgsSize = (8 + // shares
		1) // usdc_decimals

	DonateInstructionArgsSize = (8 + // amount
		8 + // epoch
		2 + // boost_bps
		1) // usdc_decimals

	PostRootInstructionArgsSize = (8 + // epoch
		16 + // total_weight
		HashSize) // root

	// Claim args are 8 (epoch) + 4 (index) + 16 (weight) + 1 (proof count)
	// plus 32 bytes per proof node.
	claimInstructionFixedArgsSize = (8 +
		4 +
		16 +
		1)

	// MaxProofNodes is the largest proof the one-byte count field can carry.
	MaxProofNodes = 255
)

type InitInstructionArgs struct {
	Decimals uint8
}

type InitInstructionAccounts struct {
	VaultState solana.PublicKey
	Admin      solana.PublicKey
	Operator   solana.PublicKey
	UsdcMint   solana.PublicKey
	ShareMint  solana.PublicKey
	VaultPda   solana.PublicKey
}

func NewInitInstruction(
	accounts *InitInstructionAccounts,
	args *InitInstructionArgs,
) (solana.Instruction, error) {
	if err := requireAccounts(
		account{"vault_state", accounts.VaultState},
		account{"admin", accounts.Admin},
		account{"operator", accounts.Operator},
		account{"usdc_mint", accounts.UsdcMint},
		account{"share_mint", accounts.ShareMint},
		account{"vault_pda", accounts.VaultPda},
	); err != nil {
		return nil, err
	}

	var offset int
	data := make([]byte, 1+InitInstructionArgsSize)

	putInstructionType(data, InstructionTypeInit, &offset)
	putUint8(data, args.Decimals, &offset)

	return solana.NewInstruction(
		ProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(accounts.VaultState, true, true),
			solana.NewAccountMeta(accounts.Admin, false, true),
			solana.NewAccountMeta(accounts.Operator, false, false),
			solana.NewAccountMeta(accounts.UsdcMint, false, false),
			solana.NewAccountMeta(accounts.ShareMint, false, false),
			solana.NewAccountMeta(accounts.VaultPda, false, false),
		},
		data,
	), nil
}

// DecodeInitInstructionArgs is the inverse of NewInitInstruction's
// argument encoding. data must be the full payload including the tag byte.
func DecodeInitInstructionArgs(data []byte) (*InitInstructionArgs, error) {
	if err := checkTagAndSize(data, InstructionTypeInit, InitInstructionArgsSize); err != nil {
		return nil, err
	}

	var args InitInstructionArgs
	offset := 1
	getUint8(data, &args.Decimals, &offset)
	return &args, nil
}

type DepositInstructionArgs struct {
	Amount       uint64
	UsdcDecimals uint8
}

type DepositInstructionAccounts struct {
	VaultState   solana.PublicKey
	VaultPda     solana.PublicKey
	User         solana.PublicKey
	UserUsdcAta  solana.PublicKey
	VaultUsdcAta solana.PublicKey
	ShareMint    solana.PublicKey
	UserShareAta solana.PublicKey
	UsdcMint     solana.PublicKey
}

func NewDepositInstruction(
	accounts *DepositInstructionAccounts,
	args *DepositInstructionArgs,
) (solana.Instruction, error) {
	if err := requireAccounts(
		account{"vault_state", accounts.VaultState},
		account{"vault_pda", accounts.VaultPda},
		account{"user", accounts.User},
		account{"user_usdc_ata", accounts.UserUsdcAta},
		account{"vault_usdc_ata", accounts.VaultUsdcAta},
		account{"share_mint", accounts.ShareMint},
		account{"user_share_ata", accounts.UserShareAta},
		account{"usdc_mint", accounts.UsdcMint},
	); err != nil {
		return nil, err
	}

	var offset int
	data := make([]byte, 1+DepositInstructionArgsSize)

	putInstructionType(data, InstructionTypeDeposit, &offset)
	putUint64(data, args.Amount, &offset)
	putUint8(data, args.UsdcDecimals, &offset)

	return solana.NewInstruction(
		ProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(accounts.VaultState, true, false),
			solana.NewAccountMeta(accounts.VaultPda, false, false),
			solana.NewAccountMeta(accounts.User, false, true),
			solana.NewAccountMeta(accounts.UserUsdcAta, true, false),
			solana.NewAccountMeta(accounts.VaultUsdcAta, true, false),
			solana.NewAccountMeta(accounts.ShareMint, true, false),
			solana.NewAccountMeta(accounts.UserShareAta, true, false),
			solana.NewAccountMeta(TokenProgramID, false, false),
			solana.NewAccountMeta(accounts.UsdcMint, false, false),
		},
		data,
	), nil
}

func DecodeDepositInstructionArgs(data []byte) (*DepositInstructionArgs, error) {
	if err := checkTagAndSize(data, InstructionTypeDeposit, DepositInstructionArgsSize); err != nil {
		return nil, err
	}

	var args DepositInstructionArgs
	offset := 1
	getUint64(data, &args.Amount, &offset)
	getUint8(data, &args.UsdcDecimals, &offset)
	return &args, nil
}

type WithdrawInstructionArgs struct {
	Shares       uint64
	UsdcDecimals uint8
}

// WithdrawInstructionAccounts mirrors DepositInstructionAccounts; the
// program uses the same account list for both directions.
type WithdrawInstructionAccounts DepositInstructionAccounts

func NewWithdrawInstruction(
	accounts *WithdrawInstructionAccounts,
	args *WithdrawInstructionArgs,
) (solana.Instruction, error) {
	if err := requireAccounts(
		account{"vault_state", accounts.VaultState},
		account{"vault_pda", accounts.VaultPda},
		account{"user", accounts.User},
		account{"user_usdc_ata", accounts.UserUsdcAta},
		account{"vault_usdc_ata", accounts.VaultUsdcAta},
		account{"share_mint", accounts.ShareMint},
		account{"user_share_ata", accounts.UserShareAta},
		account{"usdc_mint", accounts.UsdcMint},
	); err != nil {
		return nil, err
	}

	var offset int
	data := make([]byte, 1+WithdrawInstructionArgsSize)

	putInstructionType(data, InstructionTypeWithdraw, &offset)
	putUint64(data, args.Shares, &offset)
	putUint8(data, args.UsdcDecimals, &offset)

	return solana.NewInstruction(
		ProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(accounts.VaultState, true, false),
			solana.NewAccountMeta(accounts.VaultPda, false, false),
			solana.NewAccountMeta(accounts.User, false, true),
			solana.NewAccountMeta(accounts.UserUsdcAta, true, false),
			solana.NewAccountMeta(accounts.VaultUsdcAta, true, false),
			solana.NewAccountMeta(accounts.ShareMint, true, false),
			solana.NewAccountMeta(accounts.UserShareAta, true, false),
			solana.NewAccountMeta(TokenProgramID, false, false),
			solana.NewAccountMeta(accounts.UsdcMint, false, false),
		},
		data,
	), nil
}

func DecodeWithdrawInstructionArgs(data []byte) (*WithdrawInstructionArgs, error) {
	if err := checkTagAndSize(data, InstructionTypeWithdraw, WithdrawInstructionArgsSize); err != nil {
		return nil, err
	}

	var args WithdrawInstructionArgs
	offset := 1
	getUint64(data, &args.Shares, &offset)
	getUint8(data, &args.UsdcDecimals, &offset)
	return &args, nil
}

type DonateInstructionArgs struct {
	Amount       uint64
	Epoch        uint64
	BoostBps     uint16
	UsdcDecimals uint8
}

type DonateInstructionAccounts struct {
	VaultState       solana.PublicKey
	VaultPda         solana.PublicKey
	Operator         solana.PublicKey
	OperatorUsdcAta  solana.PublicKey
	VaultUsdcAta     solana.PublicKey
	BoostUsdcAta     solana.PublicKey
	UsdcMint         solana.PublicKey
	BoostDistributor solana.PublicKey
}

func NewDonateInstruction(
	accounts *DonateInstructionAccounts,
	args *DonateInstructionArgs,
) (solana.Instruction, error) {
	if err := requireAccounts(
		account{"vault_state", accounts.VaultState},
		account{"vault_pda", accounts.VaultPda},
		account{"operator", accounts.Operator},
		account{"operator_usdc_ata", accounts.OperatorUsdcAta},
		account{"vault_usdc_ata", accounts.VaultUsdcAta},
		account{"boost_usdc_ata", accounts.BoostUsdcAta},
		account{"usdc_mint", accounts.UsdcMint},
		account{"boost_distributor", accounts.BoostDistributor},
	); err != nil {
		return nil, err
	}

	var offset int
	data := make([]byte, 1+DonateInstructionArgsSize)

	putInstructionType(data, InstructionTypeDonate, &offset)
	putUint64(data, args.Amount, &offset)
	putUint64(data, args.Epoch, &offset)
	putUint16(data, args.BoostBps, &offset)
	putUint8(data, args.UsdcDecimals, &offset)

	return solana.NewInstruction(
		ProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(accounts.VaultState, true, false),
			solana.NewAccountMeta(accounts.VaultPda, false, false),
			solana.NewAccountMeta(accounts.Operator, false, true),
			solana.NewAccountMeta(accounts.OperatorUsdcAta, true, false),
			solana.NewAccountMeta(accounts.VaultUsdcAta, true, false),
			solana.NewAccountMeta(accounts.BoostUsdcAta, true, false),
			solana.NewAccountMeta(TokenProgramID, false, false),
			solana.NewAccountMeta(accounts.UsdcMint, false, false),
			solana.NewAccountMeta(accounts.BoostDistributor, true, false),
		},
		data,
	), nil
}

func DecodeDonateInstructionArgs(data []byte) (*DonateInstructionArgs, error) {
	if err := checkTagAndSize(data, InstructionTypeDonate, DonateInstructionArgsSize); err != nil {
		return nil, err
	}

	var args DonateInstructionArgs
	offset := 1
	getUint64(data, &args.Amount, &offset)
	getUint64(data, &args.Epoch, &offset)
	getUint16(data, &args.BoostBps, &offset)
	getUint8(data, &args.UsdcDecimals, &offset)
	return &args, nil
}

type PostRootInstructionArgs struct {
	Epoch       uint64
	TotalWeight bin.Uint128
	Root        Hash
}

type PostRootInstructionAccounts struct {
	VaultState       solana.PublicKey
	Operator         solana.PublicKey
	BoostDistributor solana.PublicKey
}

func NewPostRootInstruction(
	accounts *PostRootInstructionAccounts,
	args *PostRootInstructionArgs,
) (solana.Instruction, error) {
	if err := requireAccounts(
		account{"vault_state", accounts.VaultState},
		account{"operator", accounts.Operator},
		account{"boost_distributor", accounts.BoostDistributor},
	); err != nil {
		return nil, err
	}

	var offset int
	data := make([]byte, 1+PostRootInstructionArgsSize)

	putInstructionType(data, InstructionTypePostRoot, &offset)
	putUint64(data, args.Epoch, &offset)
	putUint128(data, args.TotalWeight, &offset)
	putHash(data, args.Root, &offset)

	return solana.NewInstruction(
		ProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(accounts.VaultState, true, false),
			solana.NewAccountMeta(accounts.Operator, false, true),
			solana.NewAccountMeta(accounts.BoostDistributor, true, false),
		},
		data,
	), nil
}

func DecodePostRootInstructionArgs(data []byte) (*PostRootInstructionArgs, error) {
	if err := checkTagAndSize(data, InstructionTypePostRoot, PostRootInstructionArgsSize); err != nil {
		return nil, err
	}

	var args PostRootInstructionArgs
	offset := 1
	getUint64(data, &args.Epoch, &offset)
	getUint128(data, &args.TotalWeight, &offset)
	getHash(data, &args.Root, &offset)
	return &args, nil
}

type ClaimInstructionArgs struct {
	Epoch  uint64
	Index  uint32
	Weight bin.Uint128
	Proof  []Hash
}

type ClaimInstructionAccounts struct {
	VaultState       solana.PublicKey
	VaultPda         solana.PublicKey
	Claimer          solana.PublicKey
	BoostDistributor solana.PublicKey
	ClaimBitmap      solana.PublicKey
	BoostUsdcAta     solana.PublicKey
	ClaimerUsdcAta   solana.PublicKey
	UsdcMint         solana.PublicKey
}

func NewClaimInstruction(
	accounts *ClaimInstructionAccounts,
	args *ClaimInstructionArgs,
) (solana.Instruction, error) {
	if err := requireAccounts(
		account{"vault_state", accounts.VaultState},
		account{"vault_pda", accounts.VaultPda},
		account{"claimer", accounts.Claimer},
		account{"boost_distributor", accounts.BoostDistributor},
		account{"claim_bitmap", accounts.ClaimBitmap},
		account{"boost_usdc_ata", accounts.BoostUsdcAta},
		account{"claimer_usdc_ata", accounts.ClaimerUsdcAta},
		account{"usdc_mint", accounts.UsdcMint},
	); err != nil {
		return nil, err
	}
	if len(args.Proof) > MaxProofNodes {
		return nil, fmt.Errorf("%w: got %d", ErrProofTooLong, len(args.Proof))
	}

	var offset int
	data := make([]byte, 1+claimInstructionFixedArgsSize+HashSize*len(args.Proof))

	putInstructionType(data, InstructionTypeClaim, &offset)
	putUint64(data, args.Epoch, &offset)
	putUint32(data, args.Index, &offset)
	putUint128(data, args.Weight, &offset)
	putUint8(data, uint8(len(args.Proof)), &offset)
	for _, node := range args.Proof {
		putHash(data, node, &offset)
	}

	return solana.NewInstruction(
		ProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(accounts.VaultState, true, false),
			solana.NewAccountMeta(accounts.VaultPda, false, false),
			solana.NewAccountMeta(accounts.Claimer, false, true),
			solana.NewAccountMeta(accounts.BoostDistributor, true, false),
			solana.NewAccountMeta(accounts.ClaimBitmap, true, false),
			solana.NewAccountMeta(accounts.BoostUsdcAta, true, false),
			solana.NewAccountMeta(accounts.ClaimerUsdcAta, true, false),
			solana.NewAccountMeta(TokenProgramID, false, false),
			solana.NewAccountMeta(accounts.UsdcMint, false, false),
		},
		data,
	), nil
}

func DecodeClaimInstructionArgs(data []byte) (*ClaimInstructionArgs, error) {
	if len(data) < 1+claimInstructionFixedArgsSize {
		return nil, fmt.Errorf("%w: truncated claim payload", ErrInvalidInstructionData)
	}
	if InstructionType(data[0]) != InstructionTypeClaim {
		return nil, fmt.Errorf("%w: wrong instruction tag %d", ErrInvalidInstructionData, data[0])
	}

	var args ClaimInstructionArgs
	offset := 1
	getUint64(data, &args.Epoch, &offset)
	getUint32(data, &args.Index, &offset)
	getUint128(data, &args.Weight, &offset)

	var proofCount uint8
	getUint8(data, &proofCount, &offset)

	// The declared node count fixes the total payload length; anything
	// shorter or longer is corrupt.
	if len(data) != offset+HashSize*int(proofCount) {
		return nil, fmt.Errorf("%w: claim payload length %d does not match %d proof nodes",
			ErrInvalidInstructionData, len(data), proofCount)
	}

	if proofCount > 0 {
		args.Proof = make([]Hash, proofCount)
		for i := range args.Proof {
			getHash(data, &args.Proof[i], &offset)
		}
	}
	return &args, nil
}

// DecodeInstructionType returns the opcode of a raw instruction payload.
func DecodeInstructionType(data []byte) (InstructionType, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: empty payload", ErrInvalidInstructionData)
	}
	t := InstructionType(data[0])
	if t > InstructionTypeClaim {
		return 0, fmt.Errorf("%w: unknown instruction tag %d", ErrInvalidInstructionData, data[0])
	}
	return t, nil
}

type account struct {
	name string
	key  solana.PublicKey
}

func requireAccounts(accounts ...account) error {
	for _, a := range accounts {
		if a.key.IsZero() {
			return fmt.Errorf("%w: %s", ErrMissingAccount, a.name)
		}
	}
	return nil
}

func checkTagAndSize(data []byte, expected InstructionType, argsSize int) error {
	if len(data) != 1+argsSize {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidInstructionData, 1+argsSize, len(data))
	}
	if InstructionType(data[0]) != expected {
		return fmt.Errorf("%w: wrong instruction tag %d", ErrInvalidInstructionData, data[0])
	}
	return nil
}

func putInstructionType(dst []byte, v InstructionType, offset *int) {
	dst[*offset] = uint8(v)
	*offset += 1
}

func putUint8(dst []byte, v uint8, offset *int) {
	dst[*offset] = v
	*offset += 1
}
func getUint8(src []byte, dst *uint8, offset *int) {
	*dst = src[*offset]
	*offset += 1
}

func putUint16(dst []byte, v uint16, offset *int) {
	binary.LittleEndian.PutUint16(dst[*offset:], v)
	*offset += 2
}
func getUint16(src []byte, dst *uint16, offset *int) {
	*dst = binary.LittleEndian.Uint16(src[*offset:])
	*offset += 2
}

func putUint32(dst []byte, v uint32, offset *int) {
	binary.LittleEndian.PutUint32(dst[*offset:], v)
	*offset += 4
}
func getUint32(src []byte, dst *uint32, offset *int) {
	*dst = binary.LittleEndian.Uint32(src[*offset:])
	*offset += 4
}

func putUint64(dst []byte, v uint64, offset *int) {
	binary.LittleEndian.PutUint64(dst[*offset:], v)
	*offset += 8
}
func getUint64(src []byte, dst *uint64, offset *int) {
	*dst = binary.LittleEndian.Uint64(src[*offset:])
	*offset += 8
}

// u128 values go on the wire as 16 raw little-endian bytes, low half first.
func putUint128(dst []byte, v bin.Uint128, offset *int) {
	binary.LittleEndian.PutUint64(dst[*offset:], v.Lo)
	binary.LittleEndian.PutUint64(dst[*offset+8:], v.Hi)
	*offset += 16
}
func getUint128(src []byte, dst *bin.Uint128, offset *int) {
	dst.Lo = binary.LittleEndian.Uint64(src[*offset:])
	dst.Hi = binary.LittleEndian.Uint64(src[*offset+8:])
	*offset += 16
}

func putHash(dst []byte, v Hash, offset *int) {
	copy(dst[*offset:], v[:])
	*offset += HashSize
}
func getHash(src []byte, dst *Hash, offset *int) {
	copy(dst[:], src[*offset:*offset+HashSize])
	*offset += HashSize
}
