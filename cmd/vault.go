package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/bits"
	"os"
	"strconv"
	"strings"
	"time"

	vault_protocol "github.com/jakeburden/interest.systems/solana"

	"github.com/AlecAivazis/survey/v2"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// opTimeout bounds one full submit-and-confirm round, including retries.
const opTimeout = 3 * time.Minute

// handleInitializeVault guides the admin through creating a new vault.
func handleInitializeVault(signer solana.PrivateKey) {
	fmt.Println(promptStyle.Render("\n🏦 Initialize Vault"))
	fmt.Println(promptStyle.Render("--------------------------"))

	client, err := newVaultClient(signer)
	if err != nil {
		fmt.Println(warningStyle.Render(fmt.Sprintf("Failed to create Solana client: %v", err)))
		return
	}

	operator, ok := askPublicKey("Enter the operator's public key:")
	if !ok {
		return
	}
	usdcMint, ok := askPublicKey("Enter the USDC mint address:")
	if !ok {
		return
	}
	shareMint, ok := askPublicKey("Enter the share mint address:")
	if !ok {
		return
	}

	// The vault state account is a fresh keypair that co-signs the
	// transaction.
	vaultState := solana.NewWallet().PrivateKey

	fmt.Println(promptStyle.Render("\nSending initialization transaction... Please wait."))

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	result, err := client.InitializeVault(ctx, vaultState, operator, usdcMint, shareMint, vault_protocol.UsdcDecimals)
	if err != nil {
		fmt.Println(warningStyle.Render(fmt.Sprintf("\n❌ Initialization failed: %v", err)))
		return
	}
	if !reportResult(result, "Vault Initialized!") {
		return
	}
	fmt.Println(infoStyle.Render(fmt.Sprintf("   Vault state account: %s", vaultState.PublicKey())))
	fmt.Println(promptStyle.Render("   Save this address; every other operation needs it."))
}

func handleDeposit(signer solana.PrivateKey) {
	client, err := newVaultClient(signer)
	if err != nil {
		fmt.Println(warningStyle.Render(fmt.Sprintf("Failed to create Solana client: %v", err)))
		return
	}

	vaultState, ok := askVaultState()
	if !ok {
		return
	}
	amount, ok := askUsdcAmount("Enter amount of USDC to deposit:")
	if !ok {
		return
	}

	fmt.Println(promptStyle.Render("\nSending deposit transaction... Please wait."))

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	result, err := client.Deposit(ctx, vaultState, amount)
	if err != nil {
		fmt.Println(warningStyle.Render(fmt.Sprintf("\n❌ Deposit failed: %v", err)))
		return
	}
	reportResult(result, "Deposit Successful!")
}

func handleWithdraw(signer solana.PrivateKey) {
	client, err := newVaultClient(signer)
	if err != nil {
		fmt.Println(warningStyle.Render(fmt.Sprintf("Failed to create Solana client: %v", err)))
		return
	}

	vaultState, ok := askVaultState()
	if !ok {
		return
	}
	shares, ok := askUsdcAmount("Enter amount of shares to redeem:")
	if !ok {
		return
	}

	fmt.Println(promptStyle.Render("\nSending withdraw transaction... Please wait."))

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	result, err := client.Withdraw(ctx, vaultState, shares)
	if err != nil {
		fmt.Println(warningStyle.Render(fmt.Sprintf("\n❌ Withdraw failed: %v", err)))
		return
	}
	reportResult(result, "Withdraw Successful!")
}

func handleDonate(signer solana.PrivateKey) {
	client, err := newVaultClient(signer)
	if err != nil {
		fmt.Println(warningStyle.Render(fmt.Sprintf("Failed to create Solana client: %v", err)))
		return
	}

	vaultState, ok := askVaultState()
	if !ok {
		return
	}
	boostAta, ok := askPublicKey("Enter the boost USDC token account:")
	if !ok {
		return
	}
	amount, ok := askUsdcAmount("Enter amount of USDC to donate:")
	if !ok {
		return
	}
	epoch, ok := askUint64("Enter the distribution epoch:")
	if !ok {
		return
	}

	boostBpsStr := "500"
	bpsPrompt := &survey.Input{
		Message: "Enter boost share in basis points:",
		Default: "500",
		Help:    "500 = 5% of the donation goes to the epoch's boost pool.",
	}
	survey.AskOne(bpsPrompt, &boostBpsStr)
	boostBps, err := strconv.ParseUint(boostBpsStr, 10, 16)
	if err != nil || boostBps > 10_000 {
		fmt.Println(warningStyle.Render("Invalid basis points (0-10000)."))
		return
	}

	fmt.Println(promptStyle.Render("\nSending donate transaction... Please wait."))

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	result, err := client.Donate(ctx, vaultState, boostAta, amount, epoch, uint16(boostBps))
	if err != nil {
		fmt.Println(warningStyle.Render(fmt.Sprintf("\n❌ Donation failed: %v", err)))
		return
	}
	reportResult(result, "Donation Successful!")
}

func handlePostRoot(signer solana.PrivateKey) {
	client, err := newVaultClient(signer)
	if err != nil {
		fmt.Println(warningStyle.Render(fmt.Sprintf("Failed to create Solana client: %v", err)))
		return
	}

	vaultState, ok := askVaultState()
	if !ok {
		return
	}
	epoch, ok := askUint64("Enter the distribution epoch:")
	if !ok {
		return
	}
	totalWeight, ok := askUint64("Enter the total weight for the epoch:")
	if !ok {
		return
	}
	root, ok := askHash("Enter the Merkle root (hex):")
	if !ok {
		return
	}

	fmt.Println(promptStyle.Render("\nPosting distribution root... Please wait."))

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	result, err := client.PostRoot(ctx, vaultState, epoch, bin.Uint128{Lo: totalWeight}, root)
	if err != nil {
		fmt.Println(warningStyle.Render(fmt.Sprintf("\n❌ Posting root failed: %v", err)))
		return
	}
	reportResult(result, "Distribution Root Posted!")
}

func handleClaimBoost(signer solana.PrivateKey) {
	client, err := newVaultClient(signer)
	if err != nil {
		fmt.Println(warningStyle.Render(fmt.Sprintf("Failed to create Solana client: %v", err)))
		return
	}

	vaultState, ok := askVaultState()
	if !ok {
		return
	}
	boostAta, ok := askPublicKey("Enter the boost USDC token account:")
	if !ok {
		return
	}
	epoch, ok := askUint64("Enter the distribution epoch:")
	if !ok {
		return
	}
	index64, ok := askUint64("Enter your claim index:")
	if !ok {
		return
	}
	if index64 > 255 {
		fmt.Println(warningStyle.Render("Claim index must be 0-255."))
		return
	}
	weight, ok := askUint64("Enter your claim weight:")
	if !ok {
		return
	}

	proofStr := ""
	proofPrompt := &survey.Input{
		Message: "Enter the Merkle proof (comma-separated hex nodes):",
		Help:    "As produced by the indexer; leave empty for a single-leaf tree.",
	}
	survey.AskOne(proofPrompt, &proofStr)
	proof, err := parseProof(proofStr)
	if err != nil {
		fmt.Println(warningStyle.Render(fmt.Sprintf("Invalid proof: %v", err)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	// Spare the user a doomed transaction if the slot is already claimed.
	// A missing bitmap account just means no claim landed yet.
	if st, err := client.FetchVaultState(ctx, vaultState); err == nil {
		if bm, err := client.FetchClaimBitmap(ctx, st.VaultPda, epoch); err == nil && bm.IsClaimed(uint32(index64)) {
			fmt.Println(warningStyle.Render(fmt.Sprintf("Claim slot %d is already used for epoch %d.", index64, epoch)))
			return
		}
	}

	fmt.Println(promptStyle.Render("\nSending claim transaction... Please wait."))

	result, err := client.ClaimBoost(ctx, vaultState, boostAta, epoch, uint32(index64), bin.Uint128{Lo: weight}, proof)
	if err != nil {
		fmt.Println(warningStyle.Render(fmt.Sprintf("\n❌ Claim failed: %v", err)))
		return
	}
	reportResult(result, "Boost Reward Claimed!")
}

func handleVaultStatus(signer solana.PrivateKey) {
	client, err := newVaultClient(signer)
	if err != nil {
		fmt.Println(warningStyle.Render(fmt.Sprintf("Failed to create Solana client: %v", err)))
		return
	}

	vaultState, ok := askVaultState()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := client.FetchVaultState(ctx, vaultState)
	if err != nil {
		fmt.Println(warningStyle.Render(fmt.Sprintf("Failed to fetch vault state: %v", err)))
		return
	}

	fmt.Println(titleStyle.Render("\n🏦 Vault Status"))
	fmt.Println(infoStyle.Render(fmt.Sprintf("   Admin:          %s", st.Admin)))
	fmt.Println(infoStyle.Render(fmt.Sprintf("   Operator:       %s", st.Operator)))
	fmt.Println(infoStyle.Render(fmt.Sprintf("   USDC mint:      %s", st.UsdcMint)))
	fmt.Println(infoStyle.Render(fmt.Sprintf("   Share mint:     %s", st.ShareMint)))
	fmt.Println(infoStyle.Render(fmt.Sprintf("   Vault PDA:      %s (bump %d)", st.VaultPda, st.VaultBump)))
	fmt.Println(infoStyle.Render(fmt.Sprintf("   Total shares:   %s", st.TotalShares.String())))
	fmt.Println(infoStyle.Render(fmt.Sprintf("   Price/share:    %s (1e12 fixed point)", st.Pps.String())))
	fmt.Println(infoStyle.Render(fmt.Sprintf("   Buffered base:  %d", st.BufferedBase)))

	epochStr := ""
	epochPrompt := &survey.Input{
		Message: "Epoch to inspect (leave empty to skip):",
		Help:    "Shows the posted distribution root and claim progress for one epoch.",
	}
	survey.AskOne(epochPrompt, &epochStr)
	if strings.TrimSpace(epochStr) == "" {
		return
	}
	epoch, err := strconv.ParseUint(strings.TrimSpace(epochStr), 10, 64)
	if err != nil {
		fmt.Println(warningStyle.Render("Invalid epoch."))
		return
	}

	// Fresh deadline: the first one was ticking while the user typed.
	epochCtx, cancelEpoch := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelEpoch()

	bd, err := client.FetchBoostDistributor(epochCtx, st.VaultPda, epoch)
	if err != nil {
		fmt.Println(promptStyle.Render(fmt.Sprintf("   No boost distributor for epoch %d yet.", epoch)))
		return
	}
	fmt.Println(titleStyle.Render(fmt.Sprintf("\n🎁 Epoch %d Distribution", bd.Epoch)))
	fmt.Println(infoStyle.Render(fmt.Sprintf("   Merkle root:    %s", hex.EncodeToString(bd.Root[:]))))
	fmt.Println(infoStyle.Render(fmt.Sprintf("   Total weight:   %s", bd.TotalWeight.String())))
	fmt.Println(infoStyle.Render(fmt.Sprintf("   Boost pool:     %d", bd.BoostTotal)))

	if bm, err := client.FetchClaimBitmap(epochCtx, st.VaultPda, epoch); err == nil {
		claimed := 0
		for _, word := range bm.Words {
			claimed += bits.OnesCount8(word)
		}
		fmt.Println(infoStyle.Render(fmt.Sprintf("   Claims used:    %d / 256", claimed)))
	}
}

func handleVaultHistory(signer solana.PrivateKey) {
	client, err := newVaultClient(signer)
	if err != nil {
		fmt.Println(warningStyle.Render(fmt.Sprintf("Failed to create Solana client: %v", err)))
		return
	}

	vaultState, ok := askVaultState()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	events, err := client.GetVaultHistory(ctx, vaultState)
	if err != nil {
		fmt.Println(warningStyle.Render(fmt.Sprintf("Failed to fetch vault history: %v", err)))
		return
	}
	if len(events) == 0 {
		fmt.Println(promptStyle.Render("No vault activity found."))
		return
	}

	fmt.Println(titleStyle.Render("\n📜 Vault History"))
	for _, event := range events {
		line := fmt.Sprintf("   %s  %-9s", event.Timestamp.Format("2006-01-02 15:04"), event.Type)
		switch event.Type {
		case "deposit", "donate":
			line += fmt.Sprintf("  amount=%d", event.Amount)
		case "withdraw":
			line += fmt.Sprintf("  shares=%d", event.Shares)
		case "claim":
			line += fmt.Sprintf("  epoch=%d index=%d", event.Epoch, event.Index)
		case "post_root":
			line += fmt.Sprintf("  epoch=%d", event.Epoch)
		}
		fmt.Println(infoStyle.Render(line))
	}
}

func handleCheckBalances(signer solana.PrivateKey) {
	client, err := newVaultClient(signer)
	if err != nil {
		fmt.Println(warningStyle.Render(fmt.Sprintf("Failed to create Solana client: %v", err)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	solBalance, err := client.GetBalance(ctx, signer.PublicKey())
	if err != nil {
		fmt.Println(warningStyle.Render(fmt.Sprintf("Failed to fetch SOL balance: %v", err)))
		return
	}
	fmt.Println(infoStyle.Render(fmt.Sprintf("   SOL:  %f", float64(solBalance)/float64(solana.LAMPORTS_PER_SOL))))

	mintStr := os.Getenv("USDC_MINT")
	if mintStr == "" {
		fmt.Println(promptStyle.Render("   Set USDC_MINT in .env to also see token balances."))
		return
	}
	mint, err := solana.PublicKeyFromBase58(mintStr)
	if err != nil {
		fmt.Println(warningStyle.Render("Invalid USDC_MINT in environment."))
		return
	}
	usdcBalance, err := client.GetTokenBalance(ctx, signer.PublicKey(), mint)
	if err != nil {
		fmt.Println(warningStyle.Render(fmt.Sprintf("Failed to fetch USDC balance: %v", err)))
		return
	}
	fmt.Println(infoStyle.Render(fmt.Sprintf("   USDC: %f", float64(usdcBalance)/1_000_000)))
}

// reportResult prints a submit outcome and returns true on confirmation.
func reportResult(result *vault_protocol.SubmitResult, successTitle string) bool {
	switch result.Status {
	case vault_protocol.SubmitStatusConfirmed:
		fmt.Println(titleStyle.Render("\n✅ " + successTitle))
		fmt.Printf("   Transaction Signature: %s\n", result.Signature.String())
		return true
	case vault_protocol.SubmitStatusExpired:
		fmt.Println(warningStyle.Render(fmt.Sprintf("\n⏱  Transaction expired: %v", result.Err)))
		fmt.Println(promptStyle.Render("   The network was slow; it is safe to try again."))
	case vault_protocol.SubmitStatusUnknown:
		fmt.Println(warningStyle.Render("\n❓ Outcome unknown (the wait was cancelled)."))
		fmt.Println(promptStyle.Render("   The transaction may still have landed. Check the explorer"))
		fmt.Println(promptStyle.Render("   before retrying, or you may apply the operation twice."))
		if !result.Signature.IsZero() {
			fmt.Printf("   Transaction Signature: %s\n", result.Signature.String())
		}
	default:
		fmt.Println(warningStyle.Render(fmt.Sprintf("\n❌ Transaction failed: %v", result.Err)))
	}
	return false
}

func askPublicKey(message string) (solana.PublicKey, bool) {
	input := ""
	prompt := &survey.Input{Message: message}
	survey.AskOne(prompt, &input, survey.WithValidator(survey.Required))

	key, err := solana.PublicKeyFromBase58(strings.TrimSpace(input))
	if err != nil {
		fmt.Println(warningStyle.Render("Invalid public key."))
		return solana.PublicKey{}, false
	}
	return key, true
}

// askVaultState prompts for the vault state account, defaulting to the
// VAULT_STATE environment variable when it is set.
func askVaultState() (solana.PublicKey, bool) {
	input := ""
	prompt := &survey.Input{
		Message: "Enter the vault state account:",
		Default: os.Getenv("VAULT_STATE"),
	}
	survey.AskOne(prompt, &input, survey.WithValidator(survey.Required))

	key, err := solana.PublicKeyFromBase58(strings.TrimSpace(input))
	if err != nil {
		fmt.Println(warningStyle.Render("Invalid vault state address."))
		return solana.PublicKey{}, false
	}
	return key, true
}

func askUint64(message string) (uint64, bool) {
	input := ""
	prompt := &survey.Input{Message: message}
	survey.AskOne(prompt, &input, survey.WithValidator(survey.Required))

	value, err := strconv.ParseUint(strings.TrimSpace(input), 10, 64)
	if err != nil {
		fmt.Println(warningStyle.Render("Invalid number."))
		return 0, false
	}
	return value, true
}

// askUsdcAmount prompts for a decimal USDC amount and converts it to the
// smallest unit.
func askUsdcAmount(message string) (uint64, bool) {
	input := ""
	prompt := &survey.Input{Message: message}
	survey.AskOne(prompt, &input, survey.WithValidator(survey.Required))

	amountFloat, err := strconv.ParseFloat(strings.TrimSpace(input), 64)
	if err != nil || amountFloat < 0 {
		fmt.Println(warningStyle.Render("Invalid amount entered."))
		return 0, false
	}
	return uint64(amountFloat * 1_000_000), true
}

func askHash(message string) (vault_protocol.Hash, bool) {
	var hash vault_protocol.Hash

	input := ""
	prompt := &survey.Input{Message: message}
	survey.AskOne(prompt, &input, survey.WithValidator(survey.Required))

	decoded, err := hex.DecodeString(strings.TrimSpace(input))
	if err != nil || len(decoded) != vault_protocol.HashSize {
		fmt.Println(warningStyle.Render("Expected 32 bytes of hex."))
		return hash, false
	}
	copy(hash[:], decoded)
	return hash, true
}

func parseProof(input string) ([]vault_protocol.Hash, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}

	parts := strings.Split(input, ",")
	proof := make([]vault_protocol.Hash, 0, len(parts))
	for _, part := range parts {
		decoded, err := hex.DecodeString(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("node %d is not valid hex", len(proof))
		}
		if len(decoded) != vault_protocol.HashSize {
			return nil, fmt.Errorf("node %d is %d bytes, want %d", len(proof), len(decoded), vault_protocol.HashSize)
		}
		var node vault_protocol.Hash
		copy(node[:], decoded)
		proof = append(proof, node)
	}
	return proof, nil
}
