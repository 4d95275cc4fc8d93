package vault_protocol

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Config carries everything the client needs for network access. It is
// threaded explicitly; there is no process-wide client state.
type Config struct {
	RPCEndpoint         string
	Commitment          rpc.CommitmentType
	MaxSubmitAttempts   int
	ConfirmPollInterval time.Duration
	ConfirmTimeout      time.Duration
}

// DefaultConfig returns the settings used by the CLI against devnet.
func DefaultConfig(rpcEndpoint string) Config {
	return Config{
		RPCEndpoint:         rpcEndpoint,
		Commitment:          rpc.CommitmentConfirmed,
		MaxSubmitAttempts:   3,
		ConfirmPollInterval: 500 * time.Millisecond,
		ConfirmTimeout:      60 * time.Second,
	}
}

// Client is a client for the interest vault program.
type Client struct {
	RpcClient *rpc.Client
	Signer    solana.PrivateKey

	cfg       Config
	submitter Submitter
}

// NewClient creates a new Client with a specific signer.
func NewClient(cfg Config, signer solana.PrivateKey) (*Client, error) {
	if cfg.RPCEndpoint == "" {
		return nil, fmt.Errorf("rpc endpoint not configured")
	}

	rpcClient := rpc.New(cfg.RPCEndpoint)

	return &Client{
		RpcClient: rpcClient,
		Signer:    signer,
		cfg:       cfg,
		submitter: newRPCSubmitter(rpcClient, cfg),
	}, nil
}

// NewReadOnlyClient creates a client for read-only operations that don't
// require a signer. It uses a dummy keypair internally.
func NewReadOnlyClient(cfg Config) (*Client, error) {
	dummyWallet := solana.NewWallet()
	return NewClient(cfg, dummyWallet.PrivateKey)
}

// InitializeVault creates a new vault. The vault state account is a fresh
// keypair that co-signs the transaction; the vault PDA is derived from the
// quote mint and the admin (the client's signer).
func (c *Client) InitializeVault(
	ctx context.Context,
	vaultState solana.PrivateKey,
	operator solana.PublicKey,
	usdcMint solana.PublicKey,
	shareMint solana.PublicKey,
	decimals uint8,
) (*SubmitResult, error) {
	admin := c.Signer.PublicKey()

	vaultPda, _, err := GetVaultAddress(usdcMint, admin)
	if err != nil {
		return nil, fmt.Errorf("failed to derive vault PDA: %w", err)
	}

	instruction, err := NewInitInstruction(
		&InitInstructionAccounts{
			VaultState: vaultState.PublicKey(),
			Admin:      admin,
			Operator:   operator,
			UsdcMint:   usdcMint,
			ShareMint:  shareMint,
			VaultPda:   vaultPda,
		},
		&InitInstructionArgs{Decimals: decimals},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Init instruction: %w", err)
	}

	return c.Submit(ctx, []solana.Instruction{instruction}, c.Signer, vaultState)
}

// Deposit moves USDC from the signer into the vault in exchange for shares.
func (c *Client) Deposit(
	ctx context.Context,
	vaultState solana.PublicKey,
	amount uint64,
) (*SubmitResult, error) {
	st, err := c.FetchVaultState(ctx, vaultState)
	if err != nil {
		return nil, err
	}

	user := c.Signer.PublicKey()
	accounts, err := c.userFlowAccounts(vaultState, st, user)
	if err != nil {
		return nil, err
	}

	instruction, err := NewDepositInstruction(
		accounts,
		&DepositInstructionArgs{
			Amount:       amount,
			UsdcDecimals: UsdcDecimals,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Deposit instruction: %w", err)
	}

	return c.Submit(ctx, []solana.Instruction{instruction})
}

// Withdraw burns vault shares and returns the matching USDC to the signer.
func (c *Client) Withdraw(
	ctx context.Context,
	vaultState solana.PublicKey,
	shares uint64,
) (*SubmitResult, error) {
	st, err := c.FetchVaultState(ctx, vaultState)
	if err != nil {
		return nil, err
	}

	user := c.Signer.PublicKey()
	accounts, err := c.userFlowAccounts(vaultState, st, user)
	if err != nil {
		return nil, err
	}

	instruction, err := NewWithdrawInstruction(
		(*WithdrawInstructionAccounts)(accounts),
		&WithdrawInstructionArgs{
			Shares:       shares,
			UsdcDecimals: UsdcDecimals,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Withdraw instruction: %w", err)
	}

	return c.Submit(ctx, []solana.Instruction{instruction})
}

// Donate contributes yield to the vault. boostBps basis points of the
// amount are carved out for the epoch's boost distributor; boostUsdcAta is
// the vault-owned token account that carve-out accumulates in.
func (c *Client) Donate(
	ctx context.Context,
	vaultState solana.PublicKey,
	boostUsdcAta solana.PublicKey,
	amount uint64,
	epoch uint64,
	boostBps uint16,
) (*SubmitResult, error) {
	st, err := c.FetchVaultState(ctx, vaultState)
	if err != nil {
		return nil, err
	}

	operator := c.Signer.PublicKey()

	operatorUsdcAta, _, err := solana.FindAssociatedTokenAddress(operator, st.UsdcMint)
	if err != nil {
		return nil, fmt.Errorf("failed to find operator USDC ATA: %w", err)
	}
	vaultUsdcAta, _, err := solana.FindAssociatedTokenAddress(st.VaultPda, st.UsdcMint)
	if err != nil {
		return nil, fmt.Errorf("failed to find vault USDC ATA: %w", err)
	}
	boostDistributor, _, err := GetBoostDistributorAddress(st.VaultPda, epoch)
	if err != nil {
		return nil, fmt.Errorf("failed to derive boost distributor PDA: %w", err)
	}

	instruction, err := NewDonateInstruction(
		&DonateInstructionAccounts{
			VaultState:       vaultState,
			VaultPda:         st.VaultPda,
			Operator:         operator,
			OperatorUsdcAta:  operatorUsdcAta,
			VaultUsdcAta:     vaultUsdcAta,
			BoostUsdcAta:     boostUsdcAta,
			UsdcMint:         st.UsdcMint,
			BoostDistributor: boostDistributor,
		},
		&DonateInstructionArgs{
			Amount:       amount,
			Epoch:        epoch,
			BoostBps:     boostBps,
			UsdcDecimals: UsdcDecimals,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Donate instruction: %w", err)
	}

	return c.Submit(ctx, []solana.Instruction{instruction})
}

// PostRoot publishes an epoch's Merkle root and total weight to its boost
// distributor. Only the operator recorded in the vault state may do this.
func (c *Client) PostRoot(
	ctx context.Context,
	vaultState solana.PublicKey,
	epoch uint64,
	totalWeight bin.Uint128,
	root Hash,
) (*SubmitResult, error) {
	st, err := c.FetchVaultState(ctx, vaultState)
	if err != nil {
		return nil, err
	}

	boostDistributor, _, err := GetBoostDistributorAddress(st.VaultPda, epoch)
	if err != nil {
		return nil, fmt.Errorf("failed to derive boost distributor PDA: %w", err)
	}

	instruction, err := NewPostRootInstruction(
		&PostRootInstructionAccounts{
			VaultState:       vaultState,
			Operator:         c.Signer.PublicKey(),
			BoostDistributor: boostDistributor,
		},
		&PostRootInstructionArgs{
			Epoch:       epoch,
			TotalWeight: totalWeight,
			Root:        root,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostRoot instruction: %w", err)
	}

	return c.Submit(ctx, []solana.Instruction{instruction})
}

// ClaimBoost redeems the signer's boost reward for an epoch, proving
// membership of (index, weight) in the posted root.
func (c *Client) ClaimBoost(
	ctx context.Context,
	vaultState solana.PublicKey,
	boostUsdcAta solana.PublicKey,
	epoch uint64,
	index uint32,
	weight bin.Uint128,
	proof []Hash,
) (*SubmitResult, error) {
	st, err := c.FetchVaultState(ctx, vaultState)
	if err != nil {
		return nil, err
	}

	claimer := c.Signer.PublicKey()

	boostDistributor, _, err := GetBoostDistributorAddress(st.VaultPda, epoch)
	if err != nil {
		return nil, fmt.Errorf("failed to derive boost distributor PDA: %w", err)
	}
	claimBitmap, _, err := GetClaimBitmapAddress(st.VaultPda, epoch)
	if err != nil {
		return nil, fmt.Errorf("failed to derive claim bitmap PDA: %w", err)
	}
	claimerUsdcAta, _, err := solana.FindAssociatedTokenAddress(claimer, st.UsdcMint)
	if err != nil {
		return nil, fmt.Errorf("failed to find claimer USDC ATA: %w", err)
	}

	instruction, err := NewClaimInstruction(
		&ClaimInstructionAccounts{
			VaultState:       vaultState,
			VaultPda:         st.VaultPda,
			Claimer:          claimer,
			BoostDistributor: boostDistributor,
			ClaimBitmap:      claimBitmap,
			BoostUsdcAta:     boostUsdcAta,
			ClaimerUsdcAta:   claimerUsdcAta,
			UsdcMint:         st.UsdcMint,
		},
		&ClaimInstructionArgs{
			Epoch:  epoch,
			Index:  index,
			Weight: weight,
			Proof:  proof,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Claim instruction: %w", err)
	}

	return c.Submit(ctx, []solana.Instruction{instruction})
}

// UsdcDecimals is the decimal count of the quote asset. Vault shares use
// the same convention.
const UsdcDecimals = 6

// userFlowAccounts assembles the account list shared by Deposit and
// Withdraw for a given user.
func (c *Client) userFlowAccounts(vaultState solana.PublicKey, st *VaultState, user solana.PublicKey) (*DepositInstructionAccounts, error) {
	userUsdcAta, _, err := solana.FindAssociatedTokenAddress(user, st.UsdcMint)
	if err != nil {
		return nil, fmt.Errorf("failed to find user USDC ATA: %w", err)
	}
	vaultUsdcAta, _, err := solana.FindAssociatedTokenAddress(st.VaultPda, st.UsdcMint)
	if err != nil {
		return nil, fmt.Errorf("failed to find vault USDC ATA: %w", err)
	}
	userShareAta, _, err := solana.FindAssociatedTokenAddress(user, st.ShareMint)
	if err != nil {
		return nil, fmt.Errorf("failed to find user share ATA: %w", err)
	}

	return &DepositInstructionAccounts{
		VaultState:   vaultState,
		VaultPda:     st.VaultPda,
		User:         user,
		UserUsdcAta:  userUsdcAta,
		VaultUsdcAta: vaultUsdcAta,
		ShareMint:    st.ShareMint,
		UserShareAta: userShareAta,
		UsdcMint:     st.UsdcMint,
	}, nil
}

// FetchVaultState fetches and parses the on-chain vault state account.
func (c *Client) FetchVaultState(ctx context.Context, vaultState solana.PublicKey) (*VaultState, error) {
	data, err := c.fetchAccountData(ctx, vaultState)
	if err != nil {
		return nil, fmt.Errorf("failed to get vault state account: %w", err)
	}
	return ParseAccount_VaultState(data)
}

// FetchBoostDistributor fetches an epoch's boost distributor for a vault.
func (c *Client) FetchBoostDistributor(ctx context.Context, vaultPda solana.PublicKey, epoch uint64) (*BoostDistributor, error) {
	addr, _, err := GetBoostDistributorAddress(vaultPda, epoch)
	if err != nil {
		return nil, fmt.Errorf("failed to derive boost distributor PDA: %w", err)
	}
	data, err := c.fetchAccountData(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to get boost distributor account: %w", err)
	}
	return ParseAccount_BoostDistributor(data)
}

// FetchClaimBitmap fetches an epoch's claim bitmap for a vault.
func (c *Client) FetchClaimBitmap(ctx context.Context, vaultPda solana.PublicKey, epoch uint64) (*ClaimBitmap, error) {
	addr, _, err := GetClaimBitmapAddress(vaultPda, epoch)
	if err != nil {
		return nil, fmt.Errorf("failed to derive claim bitmap PDA: %w", err)
	}
	data, err := c.fetchAccountData(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to get claim bitmap account: %w", err)
	}
	return ParseAccount_ClaimBitmap(data)
}

func (c *Client) fetchAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	resp, err := c.RpcClient.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Commitment: c.cfg.Commitment,
	})
	if err != nil {
		return nil, err
	}
	if resp.Value == nil {
		return nil, fmt.Errorf("account %s not found", account.String())
	}
	return resp.Value.Data.GetBinary(), nil
}

// GetBalance retrieves the SOL balance for a given public key.
func (c *Client) GetBalance(ctx context.Context, publicKey solana.PublicKey) (uint64, error) {
	balance, err := c.RpcClient.GetBalance(ctx, publicKey, c.cfg.Commitment)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance.Value, nil
}

// GetTokenBalance retrieves the balance of a token mint for a given owner.
func (c *Client) GetTokenBalance(ctx context.Context, owner solana.PublicKey, mint solana.PublicKey) (uint64, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return 0, fmt.Errorf("failed to find associated token address: %w", err)
	}

	balance, err := c.RpcClient.GetTokenAccountBalance(ctx, ata, c.cfg.Commitment)
	if err != nil {
		// An absent account just means a zero balance.
		if err == rpc.ErrNotFound || strings.Contains(err.Error(), "could not find account") {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get token account balance for ATA %s: %w", ata.String(), err)
	}
	if balance.Value == nil {
		return 0, nil
	}

	amount, err := strconv.ParseUint(balance.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token amount string: %w", err)
	}
	return amount, nil
}
