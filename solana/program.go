package vault_protocol

import (
	"errors"

	"github.com/gagliardetto/solana-go"
)

// ProgramID is the deployed interest vault program.
var ProgramID = solana.MustPublicKeyFromBase58("iVLTkK1DZzm9vZvDKCzJ5LbCWuBvf9Ss6JupvHrHSyV")

// PDA seed prefixes. These must match the on-chain program byte for byte;
// the program re-derives every address it authorizes.
var (
	SeedVault     = []byte("vault")
	SeedVaultAuth = []byte("vault_auth")
	SeedBoost     = []byte("boost")
	SeedClaims    = []byte("claims")
)

var (
	TokenProgramID  = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	SystemProgramID = solana.MustPublicKeyFromBase58("11111111111111111111111111111111")
)

var (
	ErrInvalidProgram         = errors.New("invalid program id")
	ErrInvalidAccountData     = errors.New("unexpected account data")
	ErrInvalidInstructionData = errors.New("unexpected instruction data")
	ErrMissingAccount         = errors.New("required account not set")
	ErrProofTooLong           = errors.New("merkle proof exceeds 255 nodes")
	ErrNoViableBump           = errors.New("unable to find a viable program address bump")
)
